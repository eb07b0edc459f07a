package licenses

import "github.com/angelmondragon/licensor-backend/pkg/enums"

// Plan is one entry of the public plan catalogue.
type Plan struct {
	Type            enums.PlanType `json:"type"`
	DurationDays    *int           `json:"duration_days"`
	DefaultMaxUsers int            `json:"default_max_users"`
	Perpetual       bool           `json:"perpetual"`
}

// Plans lists every plan with its creation defaults.
func Plans() []Plan {
	types := enums.PlanTypes()
	out := make([]Plan, 0, len(types))
	for _, t := range types {
		p := Plan{Type: t, DefaultMaxUsers: t.DefaultMaxUsers(), Perpetual: t.IsPerpetual()}
		if days := t.DefaultDurationDays(); days > 0 {
			p.DurationDays = &days
		}
		out = append(out, p)
	}
	return out
}
