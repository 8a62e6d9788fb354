package extract

import (
	"github.com/joseph-ayodele/property-importer/constants"
	"github.com/joseph-ayodele/property-importer/internal/llm"
	"github.com/joseph-ayodele/property-importer/internal/vocab"
)

func detailsSchema() map[string]any {
	return llm.ObjectSchema(map[string]any{
		"title":               llm.StringProp(),
		"description":         llm.StringProp(),
		"type":                llm.StringProp(),
		"bedrooms":            llm.NumericProp(),
		"bathrooms":           llm.NumericProp(),
		"areaSqm":             llm.NumericProp(),
		"coveredAreaSqm":      llm.NumericProp(),
		"coveredVerandaSqm":   llm.NumericProp(),
		"uncoveredVerandaSqm": llm.NumericProp(),
		"plotAreaSqm":         llm.NumericProp(),
		"basementSqm":         llm.NumericProp(),
		"buildYear":           llm.NumericProp(),
	})
}

func pricingSchema() map[string]any {
	return llm.ObjectSchema(map[string]any{
		"price":                     llm.NumericProp(),
		"currency":                  llm.StringProp(),
		"communalFees":              llm.NumericProp(),
		"priceIncludesCommunalFees": llm.BoolProp(),
		"deposit":                   llm.StringProp(),
		"depositValue":              llm.NumericProp(),
		"commission":                llm.StringProp(),
		"petsAllowed":               llm.StringProp(),
		"agreementNotes":            llm.StringProp(),
		"billsTransferable":         llm.BoolProp(),
		"viewingContact":            llm.StringProp(),
		"viewingNotes":              llm.StringProp(),
	})
}

func locationSchema(v *vocab.Vocabulary) map[string]any {
	districts := make([]string, 0, len(v.Districts))
	for _, d := range v.Districts {
		districts = append(districts, d.Key)
	}
	return llm.ObjectSchema(map[string]any{
		"addressLine1":     llm.StringProp(),
		"addressLine2":     llm.StringProp(),
		"city":             llm.StringProp(),
		"postalCode":       llm.StringProp(),
		"country":          llm.StringProp(),
		"propertyLocation": llm.EnumProp(districts),
		"propertyArea":     llm.StringProp(),
		"latitude":         llm.NumericProp(),
		"longitude":        llm.NumericProp(),
	})
}

func specsSchema(v *vocab.Vocabulary) map[string]any {
	return llm.ObjectSchema(map[string]any{
		"features": map[string]any{
			"type":  "array",
			"items": llm.EnumProp(v.FeatureKeys()),
		},
	})
}

func publishSchema(v *vocab.Vocabulary) map[string]any {
	return llm.ObjectSchema(map[string]any{
		"goal":            llm.EnumProp([]string{string(constants.GoalSale), string(constants.GoalRent)}),
		"rentalPeriod":    llm.EnumProp(v.RentalPeriods),
		"metaTitle":       llm.StringProp(),
		"metaDescription": llm.StringProp(),
		"metaKeywords":    map[string]any{"type": []any{"string", "array", "null"}},
	})
}

func categorySchema(v *vocab.Vocabulary) map[string]any {
	return llm.ObjectSchema(map[string]any{
		"category": llm.EnumProp(v.CategoryKeys()),
		"type":     llm.EnumProp(v.SubtypeKeys()),
	})
}
