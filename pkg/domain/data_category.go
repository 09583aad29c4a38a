package domain

import (
	dErrors "healthcommons/pkg/domain-errors"
	"healthcommons/pkg/platform/strings"
)

// DataCategory is a class of protected health information.
// Invariant: the value must be one of the supported categories.
//
// Usage: construct via ParseDataCategory at trust boundaries; direct casting
// bypasses validation.
type DataCategory string

const (
	CategoryDemographics   DataCategory = "demographics"
	CategoryAllergies      DataCategory = "allergies"
	CategoryMedications    DataCategory = "medications"
	CategoryDiagnoses      DataCategory = "diagnoses"
	CategoryProcedures     DataCategory = "procedures"
	CategoryLabResults     DataCategory = "lab_results"
	CategoryImagingStudies DataCategory = "imaging_studies"
	CategoryVitalSigns     DataCategory = "vital_signs"
	CategoryImmunizations  DataCategory = "immunizations"
	CategoryMentalHealth   DataCategory = "mental_health"
	CategorySubstanceAbuse DataCategory = "substance_abuse"
	CategorySexualHealth   DataCategory = "sexual_health"
	CategoryGeneticData    DataCategory = "genetic_data"
	CategoryFinancialData  DataCategory = "financial_data"
	// CategoryAll matches every category. It is only meaningful inside a
	// consent's category set, never as the subject of an access request.
	CategoryAll DataCategory = "all"
)

var validDataCategories = map[DataCategory]bool{
	CategoryDemographics:   true,
	CategoryAllergies:      true,
	CategoryMedications:    true,
	CategoryDiagnoses:      true,
	CategoryProcedures:     true,
	CategoryLabResults:     true,
	CategoryImagingStudies: true,
	CategoryVitalSigns:     true,
	CategoryImmunizations:  true,
	CategoryMentalHealth:   true,
	CategorySubstanceAbuse: true,
	CategorySexualHealth:   true,
	CategoryGeneticData:    true,
	CategoryFinancialData:  true,
	CategoryAll:            true,
}

// ParseDataCategory constructs a DataCategory from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseDataCategory(s string) (DataCategory, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "data category cannot be empty")
	}
	c := DataCategory(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid data category: "+s)
	}
	return c, nil
}

// ParseDataCategories normalizes, de-duplicates and parses a list of
// categories, preserving first-seen order.
func ParseDataCategories(values []string) ([]DataCategory, error) {
	normalized := strings.DedupeAndTrimLower(values)
	out := make([]DataCategory, 0, len(normalized))
	for _, v := range normalized {
		c, err := ParseDataCategory(v)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// IsValid checks if the category is one of the supported enum values.
func (c DataCategory) IsValid() bool {
	return validDataCategories[c]
}

func (c DataCategory) String() string {
	return string(c)
}

// CategoriesToStrings is a convenience for persistence and transport layers.
func CategoriesToStrings(cs []DataCategory) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}
