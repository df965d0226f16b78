// Package trace implements Decision Trace & Debug (spec §4.13): an
// append-only record of every tier attempt, selector/title resolution,
// validation outcome, and budget decision the Tiered Fetcher makes,
// persisted under the debug_traces namespace when recording is enabled, and
// rendered back in four shapes (compact one-line, ASCII-boxed summary,
// detailed multi-section text, and HTML) plus raw JSON for tooling.
//
// Wraps and persists the models.DecisionTrace internal/fetcher accumulates
// per request; presentation uses charmbracelet/lipgloss for boxed terminal
// summaries.
package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fetchkit/browsecore/internal/kv"
	"github.com/fetchkit/browsecore/models"
)

// Record is one persisted decision trace: the fetcher's DecisionTrace plus
// the identity/context DecisionTrace itself doesn't carry.
type Record struct {
	ID        string               `json:"id"`
	Tenant    models.TenantID      `json:"tenant"`
	URL       string               `json:"url"`
	Domain    string               `json:"domain"`
	CreatedAt time.Time            `json:"created_at"`
	Trace     *models.DecisionTrace `json:"trace"`
}

// Store persists Records under kv.NSDebugTraces, gated on Enabled so a
// tenant running with DEBUG_TRACE_ENABLED=false pays no storage cost.
type Store struct {
	store   *kv.Store
	enabled bool
}

// New builds a Store. enabled mirrors config.TraceConfig.Enabled.
func New(store *kv.Store, enabled bool) *Store {
	return &Store{store: store, enabled: enabled}
}

// Append persists trace for (tenant, url) if recording is enabled, and
// always returns the constructed Record so callers can attach
// record.trace_id to the operation's response even when persistence is
// off. Returns (nil, nil) only if trace is nil.
func (s *Store) Append(ctx context.Context, tenant models.TenantID, rawURL, domain string, dt *models.DecisionTrace) (*Record, error) {
	if dt == nil {
		return nil, nil
	}
	dt.Seal()
	rec := &Record{
		ID:        "trace-" + uuid.NewString(),
		Tenant:    tenant,
		URL:       rawURL,
		Domain:    domain,
		CreatedAt: time.Now(),
		Trace:     dt,
	}
	if !s.enabled {
		return rec, nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return rec, models.NewCoreError(models.ErrCodeInternal, "marshal decision trace", err)
	}
	if err := s.store.Put(ctx, tenant, kv.NSDebugTraces, rec.ID, raw, kv.EntryMeta{Domain: domain}); err != nil {
		return rec, err
	}
	return rec, nil
}

// Get retrieves a single trace record by ID.
func (s *Store) Get(ctx context.Context, tenant models.TenantID, id string) (*Record, bool, error) {
	raw, ok, err := s.store.Get(ctx, tenant, kv.NSDebugTraces, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, models.NewCoreError(models.ErrCodeInternal, "unmarshal decision trace", err)
	}
	return &rec, true, nil
}

// List returns every persisted trace for tenant, newest first.
func (s *Store) List(ctx context.Context, tenant models.TenantID) ([]Record, error) {
	raw, err := s.store.GetAll(ctx, tenant, kv.NSDebugTraces)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(raw))
	for _, v := range raw {
		var rec Record
		if err := json.Unmarshal(v, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Enabled reports whether recording is switched on.
func (s *Store) Enabled() bool { return s.enabled }

// OneLine renders a compact single-line summary, suitable for log lines:
// "trace-xxx example.com intelligence->lightweight ok conf=0.82 120ms".
func OneLine(rec *Record) string {
	if rec == nil || rec.Trace == nil {
		return ""
	}
	tiers := make([]string, 0, len(rec.Trace.TierAttempts))
	for _, a := range rec.Trace.TierAttempts {
		tiers = append(tiers, string(a.Tier))
	}
	outcome := "failed"
	if len(rec.Trace.TierAttempts) > 0 && rec.Trace.TierAttempts[len(rec.Trace.TierAttempts)-1].Success {
		outcome = "ok"
	}
	var confidence float64
	if n := len(rec.Trace.Validation); n > 0 {
		confidence = rec.Trace.Validation[n-1].Confidence
	}
	return fmt.Sprintf("%s %s %s %s conf=%.2f %dms",
		rec.ID, rec.Domain, strings.Join(tiers, "->"), outcome,
		confidence, totalMs(rec.Trace))
}

func totalMs(dt *models.DecisionTrace) int64 {
	var total int64
	for _, a := range dt.TierAttempts {
		total += a.DurationMs
	}
	return total
}
