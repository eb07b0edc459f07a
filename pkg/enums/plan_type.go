package enums

import (
	"fmt"
	"strings"
)

// PlanType maps to the licenses.plan_type column.
type PlanType string

const (
	PlanTypeTrial       PlanType = "trial"
	PlanTypeMonthly     PlanType = "monthly"
	PlanTypeYearly      PlanType = "yearly"
	PlanTypeLifetime    PlanType = "lifetime"
	PlanTypePromoFree   PlanType = "promo_free"
	PlanTypeFreeForever PlanType = "free_forever"
)

var validPlanTypes = []PlanType{
	PlanTypeTrial,
	PlanTypeMonthly,
	PlanTypeYearly,
	PlanTypeLifetime,
	PlanTypePromoFree,
	PlanTypeFreeForever,
}

// String implements fmt.Stringer.
func (p PlanType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanType.
func (p PlanType) IsValid() bool {
	for _, candidate := range validPlanTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlanType converts raw input into a PlanType.
func ParsePlanType(value string) (PlanType, error) {
	for _, candidate := range validPlanTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan type %q", value)
}

// PlanTypes returns every plan in catalogue order.
func PlanTypes() []PlanType {
	out := make([]PlanType, len(validPlanTypes))
	copy(out, validPlanTypes)
	return out
}

// IsPerpetual reports whether licenses on this plan never expire, regardless
// of any expire date stored on them.
func (p PlanType) IsPerpetual() bool {
	return p == PlanTypeLifetime || p == PlanTypeFreeForever
}

// DefaultDurationDays is the validity window applied when a license is created
// without an explicit expire date. Zero means no expiry.
func (p PlanType) DefaultDurationDays() int {
	switch p {
	case PlanTypeTrial:
		return 7
	case PlanTypeMonthly:
		return 30
	case PlanTypeYearly:
		return 365
	default:
		return 0
	}
}

// DefaultMaxUsers is the seat count applied when none is requested.
func (p PlanType) DefaultMaxUsers() int {
	switch p {
	case PlanTypeTrial:
		return 2
	case PlanTypeMonthly:
		return 5
	case PlanTypeYearly:
		return 10
	case PlanTypeLifetime:
		return 999
	case PlanTypePromoFree, PlanTypeFreeForever:
		return 2
	default:
		return 1
	}
}

// KeyPrefix is the plan segment embedded in license keys.
func (p PlanType) KeyPrefix() string {
	v := strings.ToUpper(strings.ReplaceAll(string(p), "_", ""))
	if len(v) > 3 {
		v = v[:3]
	}
	return v
}
