package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mohammad-safakhou/enroller/internal/ledger"
)

const runColumns = `id::text, chain_name, trigger_email, request_payload, run_identifier, status, raw_response,
       correlated_response, correlated_response_source, agent_name, correlated_at, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (ledger.AutomationRun, error) {
	var (
		run          ledger.AutomationRun
		payload      []byte
		ident        sql.NullString
		status       string
		correlated   sql.NullString
		source       sql.NullString
		agent        sql.NullString
		correlatedAt sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.ChainName, &run.TriggerEmail, &payload, &ident, &status, &run.RawResponse,
		&correlated, &source, &agent, &correlatedAt, &run.CreatedAt); err != nil {
		return ledger.AutomationRun{}, err
	}
	run.Status = ledger.Status(status)
	run.RequestPayload = map[string]string{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &run.RequestPayload); err != nil {
			return ledger.AutomationRun{}, fmt.Errorf("decode request payload: %w", err)
		}
	}
	if ident.Valid {
		run.RunIdentifier = &ident.String
	}
	if correlated.Valid {
		run.CorrelatedResponse = &correlated.String
	}
	if source.Valid {
		src := ledger.Source(source.String)
		run.CorrelatedResponseSource = &src
	}
	if agent.Valid {
		run.AgentName = &agent.String
	}
	if correlatedAt.Valid {
		t := correlatedAt.Time
		run.CorrelatedAt = &t
	}
	return run, nil
}

func scanRuns(rows *sql.Rows) ([]ledger.AutomationRun, error) {
	defer rows.Close()
	var out []ledger.AutomationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// InsertRun stores a new run and assigns its synthetic id.
func (s *Store) InsertRun(ctx context.Context, run ledger.AutomationRun) (ledger.AutomationRun, error) {
	run.ID = uuid.NewString()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = ledger.StatusPending
	}
	if run.RequestPayload == nil {
		run.RequestPayload = map[string]string{}
	}
	payload, err := encodeJSON(run.RequestPayload)
	if err != nil {
		return ledger.AutomationRun{}, err
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO automation_runs (id, chain_name, trigger_email, request_payload, run_identifier, status, raw_response, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		run.ID, run.ChainName, run.TriggerEmail, payload, nullableString(run.Identifier()), string(run.Status), run.RawResponse, run.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.AutomationRun{}, ledger.ErrIdentifierTaken
		}
		return ledger.AutomationRun{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

func (s *Store) GetRun(ctx context.Context, id string) (ledger.AutomationRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return ledger.AutomationRun{}, ledger.ErrNotFound
	}
	run, err := scanRun(s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM automation_runs WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return ledger.AutomationRun{}, ledger.ErrNotFound
	}
	return run, err
}

// FindRunByIdentifier looks a run up by exact run identifier.
func (s *Store) FindRunByIdentifier(ctx context.Context, identifier string) (ledger.AutomationRun, bool, error) {
	if identifier == "" {
		return ledger.AutomationRun{}, false, nil
	}
	run, err := scanRun(s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM automation_runs WHERE run_identifier=$1`, identifier))
	if err == sql.ErrNoRows {
		return ledger.AutomationRun{}, false, nil
	}
	if err != nil {
		return ledger.AutomationRun{}, false, err
	}
	return run, true, nil
}

func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]ledger.AutomationRun, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+runColumns+` FROM automation_runs ORDER BY created_at DESC LIMIT $1`, ledger.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanRuns(rows)
}

// ClearRuns is the administrative bulk delete.
func (s *Store) ClearRuns(ctx context.Context) (int64, error) {
	return rowsAffected(s.DB.ExecContext(ctx, `DELETE FROM automation_runs`))
}

// MergeCorrelation applies callback content with one conditional UPDATE so that two
// callbacks racing for the same identifier cannot interleave a read and a write.
func (s *Store) MergeCorrelation(ctx context.Context, c ledger.Correlation) (ledger.AutomationRun, bool, error) {
	if c.Identifier == "" {
		return ledger.AutomationRun{}, false, nil
	}
	at := c.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	run, err := scanRun(s.DB.QueryRowContext(ctx, `
UPDATE automation_runs
SET correlated_response = $2,
    correlated_response_source = $3,
    agent_name = $4,
    correlated_at = $5,
    status = 'completed'
WHERE run_identifier = $1
RETURNING `+runColumns,
		c.Identifier, c.Content, string(c.Source), nullableString(c.AgentName), at))
	if err == sql.ErrNoRows {
		return ledger.AutomationRun{}, false, nil
	}
	if err != nil {
		return ledger.AutomationRun{}, false, fmt.Errorf("merge correlation: %w", err)
	}
	return run, true, nil
}

// PruneRunsBefore deletes runs created before the cutoff.
func (s *Store) PruneRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, fmt.Errorf("cutoff must be provided")
	}
	return rowsAffected(s.DB.ExecContext(ctx, `DELETE FROM automation_runs WHERE created_at < $1`, cutoff))
}

// ExpiredRuns returns up to limit runs created before cutoff, oldest first.
func (s *Store) ExpiredRuns(ctx context.Context, cutoff time.Time, limit int) ([]ledger.AutomationRun, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+runColumns+` FROM automation_runs WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return scanRuns(rows)
}

func (s *Store) DeleteRunsByID(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return rowsAffected(s.DB.ExecContext(ctx, `DELETE FROM automation_runs WHERE id = ANY($1::uuid[])`, pq.Array(ids)))
}

func (s *Store) CountRunsByStatus(ctx context.Context) (map[ledger.Status]int64, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM automation_runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[ledger.Status]int64{}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[ledger.Status(status)] = n
	}
	return out, rows.Err()
}

func (s *Store) CountStalePending(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM automation_runs WHERE status = 'pending' AND created_at < $1`, before).Scan(&n)
	return n, err
}
