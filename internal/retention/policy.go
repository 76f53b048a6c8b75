// Package retention enforces per-category retention horizons.
package retention

import (
	"sort"
	"time"

	"github.com/mohammad-safakhou/enroller/config"
)

// Category names a class of records sharing a retention horizon.
type Category string

const (
	CategoryAudit          Category = "audit"
	CategoryMedicalRecords Category = "medical_records"
	CategoryTemporary      Category = "temporary"
	CategorySessions       Category = "sessions"
	CategoryOrphans        Category = "orphans"
)

// Policy maps categories to horizons.
type Policy struct {
	horizons map[Category]time.Duration
}

// NewPolicy builds a policy from configuration; unset horizons take defaults.
func NewPolicy(cfg config.RetentionConfig) Policy {
	cfg = cfg.Normalize()
	return Policy{horizons: map[Category]time.Duration{
		CategoryAudit:          cfg.Audit,
		CategoryMedicalRecords: cfg.MedicalRecords,
		CategoryTemporary:      cfg.Temporary,
		CategorySessions:       cfg.Sessions,
		CategoryOrphans:        cfg.Orphans,
	}}
}

// DefaultPolicy returns the built-in horizons.
func DefaultPolicy() Policy {
	return NewPolicy(config.RetentionConfig{})
}

// Horizon returns the horizon for c.
func (p Policy) Horizon(c Category) (time.Duration, bool) {
	h, ok := p.horizons[c]
	return h, ok
}

// RetentionDate is the moment a record of category c written at now expires.
// Unknown categories fall back to the audit horizon.
func (p Policy) RetentionDate(c Category, now time.Time) time.Time {
	h, ok := p.horizons[c]
	if !ok {
		h = p.horizons[CategoryAudit]
	}
	return now.Add(h)
}

// Cutoff is now minus the category horizon; records older than it are expired.
func (p Policy) Cutoff(c Category, now time.Time) time.Time {
	h, ok := p.horizons[c]
	if !ok {
		h = p.horizons[CategoryAudit]
	}
	return now.Add(-h)
}

// Categories lists the configured categories in name order.
func (p Policy) Categories() []Category {
	out := make([]Category, 0, len(p.horizons))
	for c := range p.horizons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
