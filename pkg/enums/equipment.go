package enums

import "fmt"

// EquipmentCategory classifies PPE by the body area it protects.
type EquipmentCategory string

const (
	EquipmentCategoryHearing     EquipmentCategory = "hearing"
	EquipmentCategoryEye         EquipmentCategory = "eye"
	EquipmentCategoryRespiratory EquipmentCategory = "respiratory"
	EquipmentCategoryHand        EquipmentCategory = "hand"
	EquipmentCategoryHead        EquipmentCategory = "head"
	EquipmentCategoryFoot        EquipmentCategory = "foot"
	EquipmentCategoryFall        EquipmentCategory = "fall"
	EquipmentCategoryBody        EquipmentCategory = "body"
)

var validEquipmentCategories = []EquipmentCategory{
	EquipmentCategoryHearing,
	EquipmentCategoryEye,
	EquipmentCategoryRespiratory,
	EquipmentCategoryHand,
	EquipmentCategoryHead,
	EquipmentCategoryFoot,
	EquipmentCategoryFall,
	EquipmentCategoryBody,
}

func (c EquipmentCategory) String() string { return string(c) }

func (c EquipmentCategory) IsValid() bool {
	for _, candidate := range validEquipmentCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

func ParseEquipmentCategory(value string) (EquipmentCategory, error) {
	for _, candidate := range validEquipmentCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid equipment category %q", value)
}

// EquipmentStatus is derived from certificate expiry and stock; it is never set directly.
type EquipmentStatus string

const (
	EquipmentStatusActive     EquipmentStatus = "active"
	EquipmentStatusExpired    EquipmentStatus = "expired"
	EquipmentStatusOutOfStock EquipmentStatus = "out_of_stock"
)

var validEquipmentStatuses = []EquipmentStatus{
	EquipmentStatusActive,
	EquipmentStatusExpired,
	EquipmentStatusOutOfStock,
}

func (s EquipmentStatus) String() string { return string(s) }

func (s EquipmentStatus) IsValid() bool {
	for _, candidate := range validEquipmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseEquipmentStatus(value string) (EquipmentStatus, error) {
	for _, candidate := range validEquipmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid equipment status %q", value)
}
