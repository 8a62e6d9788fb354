package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Property is an imported listing, always created as a draft.
type Property struct {
	ID                uuid.UUID `json:"id"`
	TenantID          string    `json:"tenant_id"`
	Slug              string    `json:"slug"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Category          string    `json:"category"`
	Type              string    `json:"type"`
	Goal              string    `json:"goal"`
	Status            string    `json:"status"`
	PublicationStatus string    `json:"publication_status"`
	Condition         string    `json:"condition,omitempty"`

	Price                     *float64 `json:"price,omitempty"`
	Currency                  string   `json:"currency"`
	CommunalFees              *float64 `json:"communal_fees,omitempty"`
	PriceIncludesCommunalFees *bool    `json:"price_includes_communal_fees,omitempty"`
	Deposit                   string   `json:"deposit,omitempty"`
	DepositValue              *float64 `json:"deposit_value,omitempty"`
	Commission                string   `json:"commission,omitempty"`
	RentalPeriod              string   `json:"rental_period,omitempty"`
	PetsAllowed               string   `json:"pets_allowed,omitempty"`
	BillsTransferable         *bool    `json:"bills_transferable,omitempty"`
	AgreementNotes            string   `json:"agreement_notes,omitempty"`
	ViewingContact            string   `json:"viewing_contact,omitempty"`
	ViewingNotes              string   `json:"viewing_notes,omitempty"`

	Bedrooms            *int     `json:"bedrooms,omitempty"`
	Bathrooms           *float64 `json:"bathrooms,omitempty"`
	AreaSqm             *float64 `json:"area_sqm,omitempty"`
	CoveredAreaSqm      *float64 `json:"covered_area_sqm,omitempty"`
	CoveredVerandaSqm   *float64 `json:"covered_veranda_sqm,omitempty"`
	UncoveredVerandaSqm *float64 `json:"uncovered_veranda_sqm,omitempty"`
	PlotAreaSqm         *float64 `json:"plot_area_sqm,omitempty"`
	BasementSqm         *float64 `json:"basement_sqm,omitempty"`
	BuildYear           *int     `json:"build_year,omitempty"`
	Features            []string `json:"features"`

	AddressLine1 string   `json:"address_line1,omitempty"`
	AddressLine2 string   `json:"address_line2,omitempty"`
	City         string   `json:"city,omitempty"`
	PostalCode   string   `json:"postal_code,omitempty"`
	Country      string   `json:"country"`
	District     string   `json:"district,omitempty"`
	Area         string   `json:"area,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	MapURL       string   `json:"map_url,omitempty"`

	MetaTitle       string `json:"meta_title,omitempty"`
	MetaDescription string `json:"meta_description,omitempty"`
	MetaKeywords    string `json:"meta_keywords,omitempty"`
	InternalNotes   string `json:"internal_notes,omitempty"`

	SourceURL   string          `json:"source_url,omitempty"`
	SourceRef   string          `json:"source_ref"`
	ImportRunID string          `json:"import_run_id,omitempty"`
	Extracted   json.RawMessage `json:"extracted,omitempty"`

	Media     []Media   `json:"media,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Media is one gallery image of a property.
type Media struct {
	ID         uuid.UUID `json:"id"`
	PropertyID uuid.UUID `json:"property_id"`
	Kind       string    `json:"kind"`
	URL        string    `json:"url"`
	SourceURL  string    `json:"source_url,omitempty"`
	StoreID    string    `json:"store_id,omitempty"`
	SortOrder  int       `json:"sort_order"`
	CreatedAt  time.Time `json:"created_at"`
}
