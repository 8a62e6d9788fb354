package entity

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the agency an import runs on behalf of. Empty credentials fall
// back to the process configuration.
type Tenant struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	CreatorName       string    `json:"creator_name"`
	AIAPIKey          string    `json:"-"`
	AIModel           string    `json:"ai_model,omitempty"`
	MediaAccountID    string    `json:"media_account_id,omitempty"`
	MediaAPIToken     string    `json:"-"`
	MediaDeliveryHash string    `json:"media_delivery_hash,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ScrapeRule is a saved per-domain instruction prepended to prompts.
type ScrapeRule struct {
	ID        uuid.UUID `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Domain    string    `json:"domain"`
	Rule      string    `json:"rule"`
	CreatedAt time.Time `json:"created_at"`
}
