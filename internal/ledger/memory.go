package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process implementation of every ledger interface. A single mutex
// makes MergeCorrelation atomic with respect to other writers.
type Memory struct {
	mu sync.Mutex

	runs         map[string]AutomationRun
	byIdentifier map[string]string
	orphans      []OrphanEvent
	audit        []AuditEntry
	presets      map[string]ChainPreset

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		runs:         make(map[string]AutomationRun),
		byIdentifier: make(map[string]string),
		presets:      make(map[string]ChainPreset),
		now:          time.Now,
	}
}

// WithClock overrides the time source used for created/correlated timestamps.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *Memory) InsertRun(ctx context.Context, run AutomationRun) (AutomationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ident := run.Identifier()
	if ident != "" {
		if _, ok := m.byIdentifier[ident]; ok {
			return AutomationRun{}, ErrIdentifierTaken
		}
	}
	run.ID = uuid.NewString()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = m.now().UTC()
	}
	if run.Status == "" {
		run.Status = StatusPending
	}
	run.RequestPayload = copyPayload(run.RequestPayload)
	m.runs[run.ID] = run
	if ident != "" {
		m.byIdentifier[ident] = run.ID
	}
	return run, nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (AutomationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return AutomationRun{}, ErrNotFound
	}
	return run, nil
}

func (m *Memory) FindRunByIdentifier(ctx context.Context, identifier string) (AutomationRun, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byIdentifier[identifier]
	if !ok || identifier == "" {
		return AutomationRun{}, false, nil
	}
	return m.runs[id], true, nil
}

func (m *Memory) ListRecentRuns(ctx context.Context, limit int) ([]AutomationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AutomationRun, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, run)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit = ClampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ClearRuns(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.runs))
	m.runs = make(map[string]AutomationRun)
	m.byIdentifier = make(map[string]string)
	return n, nil
}

func (m *Memory) MergeCorrelation(ctx context.Context, c Correlation) (AutomationRun, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byIdentifier[c.Identifier]
	if !ok || c.Identifier == "" {
		return AutomationRun{}, false, nil
	}
	run := m.runs[id]
	at := c.At
	if at.IsZero() {
		at = m.now().UTC()
	}
	content := c.Content
	source := c.Source
	run.CorrelatedResponse = &content
	run.CorrelatedResponseSource = &source
	run.AgentName = StringPtr(c.AgentName)
	run.CorrelatedAt = &at
	run.Status = StatusCompleted
	m.runs[id] = run
	return run, true, nil
}

func (m *Memory) PruneRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, fmt.Errorf("cutoff must be provided")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, run := range m.runs {
		if run.CreatedAt.Before(cutoff) {
			delete(m.runs, id)
			if ident := run.Identifier(); ident != "" {
				delete(m.byIdentifier, ident)
			}
			n++
		}
	}
	return n, nil
}

// ExpiredRuns returns runs created before cutoff, oldest first.
func (m *Memory) ExpiredRuns(ctx context.Context, cutoff time.Time, limit int) ([]AutomationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AutomationRun
	for _, run := range m.runs {
		if run.CreatedAt.Before(cutoff) {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteRunsByID removes the given runs and reports how many existed.
func (m *Memory) DeleteRunsByID(ctx context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		run, ok := m.runs[id]
		if !ok {
			continue
		}
		delete(m.runs, id)
		if ident := run.Identifier(); ident != "" {
			delete(m.byIdentifier, ident)
		}
		n++
	}
	return n, nil
}

func (m *Memory) CountRunsByStatus(ctx context.Context) (map[Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[Status]int64{}
	for _, run := range m.runs {
		out[run.Status]++
	}
	return out, nil
}

func (m *Memory) CountStalePending(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, run := range m.runs {
		if run.Status == StatusPending && run.CreatedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) RecordOrphan(ctx context.Context, ev OrphanEvent) (OrphanEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = uuid.NewString()
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = m.now().UTC()
	}
	m.orphans = append(m.orphans, ev)
	return ev, nil
}

func (m *Memory) ListOrphans(ctx context.Context, limit int) ([]OrphanEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = ClampLimit(limit)
	out := make([]OrphanEvent, 0, limit)
	for i := len(m.orphans) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.orphans[i])
	}
	return out, nil
}

func (m *Memory) PruneOrphansBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, fmt.Errorf("cutoff must be provided")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.orphans[:0]
	var n int64
	for _, ev := range m.orphans {
		if ev.ReceivedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, ev)
	}
	m.orphans = kept
	return n, nil
}

func (m *Memory) RecordAudit(ctx context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now().UTC()
	}
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) PruneAuditBefore(ctx context.Context, now time.Time) (int64, error) {
	if now.IsZero() {
		return 0, fmt.Errorf("cutoff must be provided")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.audit[:0]
	var n int64
	for _, e := range m.audit {
		if e.RetentionDate.Before(now) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.audit = kept
	return n, nil
}

// ListAudit returns the newest audit entries first.
func (m *Memory) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditEntry, 0, len(m.audit))
	for i := len(m.audit) - 1; i >= 0 && len(out) < ClampLimit(limit); i-- {
		out = append(out, m.audit[i])
	}
	return out, nil
}

// AuditEntries returns a copy of the recorded audit trail.
func (m *Memory) AuditEntries() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.audit...)
}

func (m *Memory) AddPreset(ctx context.Context, p ChainPreset) (ChainPreset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Name = strings.TrimSpace(p.Name)
	p.ChainName = strings.TrimSpace(p.ChainName)
	if p.Name == "" || p.ChainName == "" {
		return ChainPreset{}, fmt.Errorf("preset name and chain name are required")
	}
	if existing, ok := m.presets[p.Name]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		p.ID = uuid.NewString()
		p.CreatedAt = m.now().UTC()
	}
	m.presets[p.Name] = p
	return p, nil
}

func (m *Memory) ListPresets(ctx context.Context) ([]ChainPreset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChainPreset, 0, len(m.presets))
	for _, p := range m.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) RemovePreset(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.presets[name]; !ok {
		return ErrNotFound
	}
	delete(m.presets, name)
	return nil
}

func copyPayload(in map[string]string) map[string]string {
	if in == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var (
	_ Ledger      = (*Memory)(nil)
	_ OrphanStore = (*Memory)(nil)
	_ AuditStore  = (*Memory)(nil)
	_ PresetStore = (*Memory)(nil)
)
