package enums

// IssuanceValidity records whether the certificate was still valid when the
// equipment was handed over.
type IssuanceValidity string

const (
	IssuanceValidityValid   IssuanceValidity = "valid"
	IssuanceValidityExpired IssuanceValidity = "expired"
)

func (v IssuanceValidity) String() string { return string(v) }

func (v IssuanceValidity) IsValid() bool {
	return v == IssuanceValidityValid || v == IssuanceValidityExpired
}
