package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/enroller/internal/ledger"
)

// Orphan operations
func (s *Store) RecordOrphan(ctx context.Context, ev ledger.OrphanEvent) (ledger.OrphanEvent, error) {
	ev.ID = uuid.NewString()
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO orphan_events (id, channel, identifier, reason, content, received_at)
VALUES ($1,$2,$3,$4,$5,$6)`, ev.ID, string(ev.Channel), ev.Identifier, ev.Reason, ev.Content, ev.ReceivedAt)
	if err != nil {
		return ledger.OrphanEvent{}, fmt.Errorf("record orphan: %w", err)
	}
	return ev, nil
}

func (s *Store) ListOrphans(ctx context.Context, limit int) ([]ledger.OrphanEvent, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id::text, channel, identifier, reason, content, received_at
FROM orphan_events
ORDER BY received_at DESC
LIMIT $1`, ledger.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.OrphanEvent
	for rows.Next() {
		var (
			ev      ledger.OrphanEvent
			channel string
		)
		if err := rows.Scan(&ev.ID, &channel, &ev.Identifier, &ev.Reason, &ev.Content, &ev.ReceivedAt); err != nil {
			return nil, err
		}
		ev.Channel = ledger.Source(channel)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) PruneOrphansBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, fmt.Errorf("cutoff must be provided")
	}
	return rowsAffected(s.DB.ExecContext(ctx, `DELETE FROM orphan_events WHERE received_at < $1`, cutoff))
}

// Audit operations
func (s *Store) RecordAudit(ctx context.Context, entry ledger.AuditEntry) error {
	if entry.RetentionDate.IsZero() {
		return fmt.Errorf("audit entry retention date must be provided")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	contextB, err := encodeJSON(entry.Context)
	if err != nil {
		return err
	}
	detailsB, err := encodeJSON(entry.Details)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO audit_logs (id, action, resource_type, resource_id, context, details, retention_date, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID, entry.Action, entry.ResourceType, entry.ResourceID, contextB, detailsB, entry.RetentionDate, entry.CreatedAt)
	return err
}

// PruneAuditBefore deletes audit rows whose retention date has passed.
func (s *Store) PruneAuditBefore(ctx context.Context, now time.Time) (int64, error) {
	if now.IsZero() {
		return 0, fmt.Errorf("cutoff must be provided")
	}
	return rowsAffected(s.DB.ExecContext(ctx, `DELETE FROM audit_logs WHERE retention_date < $1`, now))
}

// ListAudit returns the newest audit entries.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]ledger.AuditEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id::text, action, resource_type, resource_id, context, details, retention_date, created_at
FROM audit_logs
ORDER BY created_at DESC
LIMIT $1`, ledger.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.AuditEntry
	for rows.Next() {
		var (
			e                  ledger.AuditEntry
			contextB, detailsB []byte
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.ResourceType, &e.ResourceID, &contextB, &detailsB, &e.RetentionDate, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(contextB) > 0 {
			if err := json.Unmarshal(contextB, &e.Context); err != nil {
				return nil, fmt.Errorf("decode audit %s context: %w", e.ID, err)
			}
		}
		if len(detailsB) > 0 {
			if err := json.Unmarshal(detailsB, &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit %s details: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Chain preset operations
func (s *Store) AddPreset(ctx context.Context, p ledger.ChainPreset) (ledger.ChainPreset, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.ChainName = strings.TrimSpace(p.ChainName)
	if p.Name == "" || p.ChainName == "" {
		return ledger.ChainPreset{}, fmt.Errorf("preset name and chain name are required")
	}
	var out ledger.ChainPreset
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO chain_presets (id, name, chain_name)
VALUES ($1,$2,$3)
ON CONFLICT (name) DO UPDATE SET chain_name = EXCLUDED.chain_name
RETURNING id::text, name, chain_name, created_at`, uuid.NewString(), p.Name, p.ChainName).
		Scan(&out.ID, &out.Name, &out.ChainName, &out.CreatedAt)
	return out, err
}

func (s *Store) ListPresets(ctx context.Context) ([]ledger.ChainPreset, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id::text, name, chain_name, created_at FROM chain_presets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.ChainPreset
	for rows.Next() {
		var p ledger.ChainPreset
		if err := rows.Scan(&p.ID, &p.Name, &p.ChainName, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) RemovePreset(ctx context.Context, name string) error {
	n, err := rowsAffected(s.DB.ExecContext(ctx, `DELETE FROM chain_presets WHERE name=$1`, name))
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}
