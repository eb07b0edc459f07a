package enums

import "fmt"

// LicenseStatus maps to the licenses.status column.
type LicenseStatus string

const (
	LicenseStatusPending LicenseStatus = "pending"
	LicenseStatusActive  LicenseStatus = "active"
	LicenseStatusExpired LicenseStatus = "expired"
	LicenseStatusRevoked LicenseStatus = "revoked"
)

var validLicenseStatuses = []LicenseStatus{
	LicenseStatusPending,
	LicenseStatusActive,
	LicenseStatusExpired,
	LicenseStatusRevoked,
}

// String implements fmt.Stringer.
func (l LicenseStatus) String() string {
	return string(l)
}

// IsValid reports whether the value matches the canonical license status set.
func (l LicenseStatus) IsValid() bool {
	for _, candidate := range validLicenseStatuses {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLicenseStatus converts raw input into LicenseStatus.
func ParseLicenseStatus(value string) (LicenseStatus, error) {
	for _, candidate := range validLicenseStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid license status %q", value)
}

// LicenseStatuses returns the canonical status set in display order.
func LicenseStatuses() []LicenseStatus {
	out := make([]LicenseStatus, len(validLicenseStatuses))
	copy(out, validLicenseStatuses)
	return out
}

// LicenseEvent names an operation that can move a license between statuses.
type LicenseEvent string

const (
	LicenseEventActivate   LicenseEvent = "activate"
	LicenseEventVerify     LicenseEvent = "verify"
	LicenseEventExpire     LicenseEvent = "expire"
	LicenseEventDeactivate LicenseEvent = "deactivate"
	LicenseEventUnbind     LicenseEvent = "unbind"
	LicenseEventRevoke     LicenseEvent = "revoke"
	LicenseEventExtend     LicenseEvent = "extend"
)

// String implements fmt.Stringer.
func (e LicenseEvent) String() string {
	return string(e)
}
