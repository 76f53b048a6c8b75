package config

import (
	"fmt"
	"time"
)

const (
	day = 24 * time.Hour

	DefaultAuditRetention         = 2555 * day
	DefaultMedicalRecordRetention = 2555 * day
	DefaultTemporaryRetention     = 30 * day
	DefaultSessionRetention       = 1 * day
	DefaultOrphanRetention        = 30 * day

	// DefaultPrimaryCron sweeps expired records once a day.
	DefaultPrimaryCron = "0 2 * * *"
	// DefaultHealthCron runs the retention health check weekly.
	DefaultHealthCron = "0 3 * * 0"
)

// RetentionConfig holds the per-category retention horizons.
type RetentionConfig struct {
	Audit          time.Duration `mapstructure:"audit"`
	MedicalRecords time.Duration `mapstructure:"medical_records"`
	Temporary      time.Duration `mapstructure:"temporary"`
	Sessions       time.Duration `mapstructure:"sessions"`
	Orphans        time.Duration `mapstructure:"orphans"`
}

// Normalize fills unset horizons with their defaults.
func (c RetentionConfig) Normalize() RetentionConfig {
	if c.Audit <= 0 {
		c.Audit = DefaultAuditRetention
	}
	if c.MedicalRecords <= 0 {
		c.MedicalRecords = DefaultMedicalRecordRetention
	}
	if c.Temporary <= 0 {
		c.Temporary = DefaultTemporaryRetention
	}
	if c.Sessions <= 0 {
		c.Sessions = DefaultSessionRetention
	}
	if c.Orphans <= 0 {
		c.Orphans = DefaultOrphanRetention
	}
	return c
}

// Validate rejects horizons shorter than an hour; they would purge in-flight runs.
func (c RetentionConfig) Validate() error {
	check := map[string]time.Duration{
		"retention.audit":           c.Audit,
		"retention.medical_records": c.MedicalRecords,
		"retention.temporary":       c.Temporary,
		"retention.sessions":        c.Sessions,
		"retention.orphans":         c.Orphans,
	}
	for key, horizon := range check {
		if horizon < time.Hour {
			return fmt.Errorf("%s must be at least 1h, got %s", key, horizon)
		}
	}
	return nil
}
