package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/mohammad-safakhou/enroller/internal/ledger"
)

func TestRecordOrphan(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO orphan_events`).
		WithArgs(sqlmock.AnyArg(), "email", "late-identifier-0001", "unknown_identifier", "body", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ev, err := st.RecordOrphan(context.Background(), ledger.OrphanEvent{
		Channel:    ledger.SourceEmail,
		Identifier: "late-identifier-0001",
		Reason:     "unknown_identifier",
		Content:    "body",
	})
	if err != nil {
		t.Fatalf("RecordOrphan: %v", err)
	}
	if ev.ID == "" {
		t.Fatal("expected orphan id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPruneOrphansBefore(t *testing.T) {
	st, mock := newMockStore(t)
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	mock.ExpectExec(`DELETE FROM orphan_events WHERE received_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := st.PruneOrphansBefore(context.Background(), cutoff)
	if err != nil || n != 2 {
		t.Fatalf("PruneOrphansBefore: n=%d err=%v", n, err)
	}
}

func TestRecordAuditRequiresRetentionDate(t *testing.T) {
	st := &Store{}
	if err := st.RecordAudit(context.Background(), ledger.AuditEntry{Action: "run.triggered"}); err == nil {
		t.Fatal("expected error for missing retention date")
	}
}

func TestRecordAudit(t *testing.T) {
	st, mock := newMockStore(t)
	retain := time.Date(2033, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs(sqlmock.AnyArg(), "retention.sweep", "retention", "", []byte(`{"actor":"scheduler"}`), []byte(`{"deleted":3}`), retain, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := st.RecordAudit(context.Background(), ledger.AuditEntry{
		Action:        "retention.sweep",
		ResourceType:  "retention",
		Context:       map[string]string{"actor": "scheduler"},
		Details:       map[string]any{"deleted": 3},
		RetentionDate: retain,
	})
	if err != nil {
		t.Fatalf("RecordAudit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPruneAuditBefore(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec(`DELETE FROM audit_logs WHERE retention_date < \$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 11))

	n, err := st.PruneAuditBefore(context.Background(), now)
	if err != nil || n != 11 {
		t.Fatalf("PruneAuditBefore: n=%d err=%v", n, err)
	}
}

func TestListAudit(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now()
	cols := []string{"id", "action", "resource_type", "resource_id", "context", "details", "retention_date", "created_at"}

	mock.ExpectQuery(`FROM audit_logs`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("a1", "retention.sweep", "retention", "", []byte(`{"actor":"scheduler"}`), []byte(`{"deleted":3}`), now, now))

	entries, err := st.ListAudit(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(entries) != 1 || entries[0].Context["actor"] != "scheduler" || entries[0].Details["deleted"] != float64(3) {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestListAuditCorruptJSON(t *testing.T) {
	cols := []string{"id", "action", "resource_type", "resource_id", "context", "details", "retention_date", "created_at"}
	cases := map[string][2][]byte{
		"context": {[]byte(`{"actor":`), nil},
		"details": {nil, []byte(`not json`)},
	}
	for field, blobs := range cases {
		t.Run(field, func(t *testing.T) {
			st, mock := newMockStore(t)
			now := time.Now()
			mock.ExpectQuery(`FROM audit_logs`).
				WithArgs(10).
				WillReturnRows(sqlmock.NewRows(cols).
					AddRow("a1", "run.triggered", "run", "r1", blobs[0], blobs[1], now, now))

			_, err := st.ListAudit(context.Background(), 10)
			if err == nil {
				t.Fatalf("expected error for corrupt audit %s", field)
			}
			var syntaxErr *json.SyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Fatalf("expected wrapped json syntax error, got %v", err)
			}
		})
	}
}

func TestPresets(t *testing.T) {
	st, mock := newMockStore(t)
	created := time.Now()

	mock.ExpectQuery(`INSERT INTO chain_presets`).
		WithArgs(sqlmock.AnyArg(), "intake", "Patient Intake").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "chain_name", "created_at"}).
			AddRow("0b6f7d1e-8f57-4c55-9d1f-2c3b4a5d6e7f", "intake", "Patient Intake", created))
	mock.ExpectExec(`DELETE FROM chain_presets WHERE name=\$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	p, err := st.AddPreset(context.Background(), ledger.ChainPreset{Name: " intake ", ChainName: "Patient Intake"})
	if err != nil {
		t.Fatalf("AddPreset: %v", err)
	}
	if p.Name != "intake" {
		t.Fatalf("unexpected preset: %+v", p)
	}
	if err := st.RemovePreset(context.Background(), "missing"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
