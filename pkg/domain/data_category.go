package domain

import dErrors "healthcommons/pkg/domain-errors"

// DataCategory names a class of health records a query may aggregate over.
// Invariant: the value must be one of the supported categories.
//
// Usage: construct via ParseDataCategory at trust boundaries; an unknown
// category is an error, never mapped to a default.
type DataCategory string

const (
	CategoryVitalSigns     DataCategory = "vital_signs"
	CategoryLabResults     DataCategory = "lab_results"
	CategoryMedications    DataCategory = "medications"
	CategoryDiagnoses      DataCategory = "diagnoses"
	CategoryImmunizations  DataCategory = "immunizations"
	CategoryEncounters     DataCategory = "encounters"
	CategorySymptoms       DataCategory = "symptoms"
	CategoryDemographics   DataCategory = "demographics"
	CategoryLifestyle      DataCategory = "lifestyle"
	CategoryInfectiousCase DataCategory = "infectious_case"
)

var validDataCategories = map[DataCategory]bool{
	CategoryVitalSigns:     true,
	CategoryLabResults:     true,
	CategoryMedications:    true,
	CategoryDiagnoses:      true,
	CategoryImmunizations:  true,
	CategoryEncounters:     true,
	CategorySymptoms:       true,
	CategoryDemographics:   true,
	CategoryLifestyle:      true,
	CategoryInfectiousCase: true,
}

// ParseDataCategory constructs a DataCategory from external input.
func ParseDataCategory(s string) (DataCategory, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "data category cannot be empty")
	}
	c := DataCategory(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown data category: "+s)
	}
	return c, nil
}

// IsValid checks if the category is one of the supported enum values.
func (c DataCategory) IsValid() bool {
	return validDataCategories[c]
}

func (c DataCategory) String() string {
	return string(c)
}
