package enums

import "fmt"

// RiskCategory is the occupational hazard family.
type RiskCategory string

const (
	RiskCategoryPhysical   RiskCategory = "physical"
	RiskCategoryChemical   RiskCategory = "chemical"
	RiskCategoryBiological RiskCategory = "biological"
	RiskCategoryErgonomic  RiskCategory = "ergonomic"
	RiskCategoryAccident   RiskCategory = "accident"
)

var validRiskCategories = []RiskCategory{
	RiskCategoryPhysical,
	RiskCategoryChemical,
	RiskCategoryBiological,
	RiskCategoryErgonomic,
	RiskCategoryAccident,
}

func (c RiskCategory) IsValid() bool {
	for _, candidate := range validRiskCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

func ParseRiskCategory(value string) (RiskCategory, error) {
	for _, candidate := range validRiskCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid risk category %q", value)
}

// RiskClassification buckets the probability x severity score.
type RiskClassification string

const (
	RiskClassificationLow      RiskClassification = "low"
	RiskClassificationModerate RiskClassification = "moderate"
	RiskClassificationMedium   RiskClassification = "medium"
	RiskClassificationHigh     RiskClassification = "high"
	RiskClassificationCritical RiskClassification = "critical"
)

// RiskStatus tracks whether mitigation is in place.
type RiskStatus string

const (
	RiskStatusActive     RiskStatus = "active"
	RiskStatusControlled RiskStatus = "controlled"
)

func (s RiskStatus) IsValid() bool {
	return s == RiskStatusActive || s == RiskStatusControlled
}

func ParseRiskStatus(value string) (RiskStatus, error) {
	status := RiskStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid risk status %q", value)
	}
	return status, nil
}
