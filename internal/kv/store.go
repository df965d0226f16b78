// Package kv implements the Tenant-Aware KV Store (spec §4.12): embedded
// persistence with per-tenant namespacing and an opt-in shared pool, backed
// by modernc.org/sqlite (pure Go, no cgo) — the same driver
// theRebelliousNerd-codenerd and the other_examples research-CLI repos
// reach for when they need an embeddable, trivially cross-compilable store.
package kv

import (
	"context"
	"database/sql"
	"time"

	"github.com/fetchkit/browsecore/models"

	_ "modernc.org/sqlite"
)

// Store is the tenant-namespaced key-value engine. Keys are logically
// "tenant:<id>:ns:<namespace>:<key>"; the prefix is enforced server-side by
// every query, not by trusting the caller's key string, so no tenant can
// read or write another tenant's namespace by path manipulation.
type Store struct {
	db *sql.DB
}

// Open creates/opens the sqlite-backed store at path (":memory:" is valid
// for tests).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeInternal, "open kv store", err)
	}
	db.SetMaxOpenConns(1) // single-writer-many-reader via one connection; sqlite serializes anyway
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	tenant      TEXT NOT NULL,
	namespace   TEXT NOT NULL,
	key         TEXT NOT NULL,
	value       BLOB NOT NULL,
	contributor TEXT NOT NULL DEFAULT '',
	domain      TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (tenant, namespace, key)
);
CREATE INDEX IF NOT EXISTS idx_kv_domain ON kv_entries(namespace, domain);
CREATE INDEX IF NOT EXISTS idx_kv_category ON kv_entries(namespace, category);

CREATE TABLE IF NOT EXISTS tenant_policies (
	tenant_id      TEXT PRIMARY KEY,
	share_patterns INTEGER NOT NULL DEFAULT 0,
	consume_shared INTEGER NOT NULL DEFAULT 0
);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "migrate kv schema", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// EntryMeta carries the optional domain/category/contributor attribution
// used by the shared-pool listing filter.
type EntryMeta struct {
	Domain      string
	Category    string
	Contributor models.TenantID
}

// Put writes a value, scoped to (tenant, namespace, key).
func (s *Store) Put(ctx context.Context, tenant models.TenantID, namespace, key string, value []byte, meta EntryMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (tenant, namespace, key, value, contributor, domain, category, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant, namespace, key) DO UPDATE SET
			value=excluded.value, contributor=excluded.contributor,
			domain=excluded.domain, category=excluded.category, updated_at=excluded.updated_at
	`, string(tenant), namespace, key, value, string(meta.Contributor), meta.Domain, meta.Category, time.Now().UnixNano())
	if err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "kv put", err)
	}
	return nil
}

// Get reads a value scoped to (tenant, namespace, key).
func (s *Store) Get(ctx context.Context, tenant models.TenantID, namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE tenant=? AND namespace=? AND key=?`,
		string(tenant), namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, models.NewCoreError(models.ErrCodeInternal, "kv get", err)
	}
	return value, true, nil
}

// Has reports whether (tenant, namespace, key) exists.
func (s *Store) Has(ctx context.Context, tenant models.TenantID, namespace, key string) (bool, error) {
	_, ok, err := s.Get(ctx, tenant, namespace, key)
	return ok, err
}

// Delete removes (tenant, namespace, key) if present.
func (s *Store) Delete(ctx context.Context, tenant models.TenantID, namespace, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE tenant=? AND namespace=? AND key=?`,
		string(tenant), namespace, key)
	if err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "kv delete", err)
	}
	return nil
}

// Keys lists all keys in a tenant's namespace.
func (s *Store) Keys(ctx context.Context, tenant models.TenantID, namespace string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv_entries WHERE tenant=? AND namespace=?`,
		string(tenant), namespace)
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeInternal, "kv keys", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, models.NewCoreError(models.ErrCodeInternal, "kv keys scan", err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// GetAll returns every value in a tenant's namespace, keyed by key.
func (s *Store) GetAll(ctx context.Context, tenant models.TenantID, namespace string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv_entries WHERE tenant=? AND namespace=?`,
		string(tenant), namespace)
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeInternal, "kv get_all", err)
	}
	defer rows.Close()
	out := make(map[string][]byte)
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, models.NewCoreError(models.ErrCodeInternal, "kv get_all scan", err)
		}
		out[k] = v
	}
	return out, nil
}

// Count returns the number of entries in a tenant's namespace.
func (s *Store) Count(ctx context.Context, tenant models.TenantID, namespace string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv_entries WHERE tenant=? AND namespace=?`,
		string(tenant), namespace).Scan(&n)
	if err != nil {
		return 0, models.NewCoreError(models.ErrCodeInternal, "kv count", err)
	}
	return n, nil
}

// Clear removes every entry in a tenant's namespace.
func (s *Store) Clear(ctx context.Context, tenant models.TenantID, namespace string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE tenant=? AND namespace=?`,
		string(tenant), namespace)
	if err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "kv clear", err)
	}
	return nil
}

// Tx is the handle passed into Transaction's callback. All methods are
// scoped identically to Store's, but participate in the same transaction.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Put(tenant models.TenantID, namespace, key string, value []byte, meta EntryMeta) error {
	_, err := t.tx.Exec(`
		INSERT INTO kv_entries (tenant, namespace, key, value, contributor, domain, category, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant, namespace, key) DO UPDATE SET
			value=excluded.value, contributor=excluded.contributor,
			domain=excluded.domain, category=excluded.category, updated_at=excluded.updated_at
	`, string(tenant), namespace, key, value, string(meta.Contributor), meta.Domain, meta.Category, time.Now().UnixNano())
	return err
}

func (t *Tx) Get(tenant models.TenantID, namespace, key string) ([]byte, bool, error) {
	var value []byte
	err := t.tx.QueryRow(`SELECT value FROM kv_entries WHERE tenant=? AND namespace=? AND key=?`,
		string(tenant), namespace, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return value, err == nil, err
}

// Transaction runs fn atomically; any error returned by fn rolls back.
func (s *Store) Transaction(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "begin kv transaction", err)
	}
	if err := fn(&Tx{tx: sqlTx}); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "commit kv transaction", err)
	}
	return nil
}

// --- shared pool -----------------------------------------------------------

// SetTenantPolicy records a tenant's shared-pool participation flags.
func (s *Store) SetTenantPolicy(ctx context.Context, p models.TenantPolicy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_policies (tenant_id, share_patterns, consume_shared) VALUES (?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET share_patterns=excluded.share_patterns, consume_shared=excluded.consume_shared
	`, string(p.TenantID), boolToInt(p.SharePatterns), boolToInt(p.ConsumeShared))
	if err != nil {
		return models.NewCoreError(models.ErrCodeInternal, "set tenant policy", err)
	}
	return nil
}

func (s *Store) policy(ctx context.Context, tenant models.TenantID) (models.TenantPolicy, error) {
	var share, consume int
	err := s.db.QueryRowContext(ctx, `SELECT share_patterns, consume_shared FROM tenant_policies WHERE tenant_id=?`,
		string(tenant)).Scan(&share, &consume)
	if err == sql.ErrNoRows {
		return models.TenantPolicy{TenantID: tenant}, nil
	}
	if err != nil {
		return models.TenantPolicy{}, models.NewCoreError(models.ErrCodeInternal, "read tenant policy", err)
	}
	return models.TenantPolicy{TenantID: tenant, SharePatterns: share == 1, ConsumeShared: consume == 1}, nil
}

// ContributeShared writes an entry into the shared-pool namespace on behalf
// of tenant, refusing if the tenant has not opted into share_patterns.
func (s *Store) ContributeShared(ctx context.Context, tenant models.TenantID, namespace, key string, value []byte, domain, category string) error {
	pol, err := s.policy(ctx, tenant)
	if err != nil {
		return err
	}
	if !pol.SharePatterns {
		return models.NewCoreError(models.ErrCodeInvalidInput, "tenant has not opted into share_patterns", nil)
	}
	return s.Put(ctx, models.SharedPoolTenant, namespace, key, value, EntryMeta{
		Domain: domain, Category: category, Contributor: tenant,
	})
}

// SharedListing is one row returned by ListShared.
type SharedListing struct {
	Key         string
	Value       []byte
	Contributor models.TenantID
	Domain      string
	Category    string
}

// ListShared returns shared-pool entries, optionally filtered by domain
// and/or category, refusing if the consuming tenant has not opted into
// consume_shared.
func (s *Store) ListShared(ctx context.Context, consumer models.TenantID, namespace, domainFilter, categoryFilter string) ([]SharedListing, error) {
	pol, err := s.policy(ctx, consumer)
	if err != nil {
		return nil, err
	}
	if !pol.ConsumeShared {
		return nil, nil
	}

	query := `SELECT key, value, contributor, domain, category FROM kv_entries WHERE tenant=? AND namespace=?`
	args := []interface{}{string(models.SharedPoolTenant), namespace}
	if domainFilter != "" {
		query += ` AND domain=?`
		args = append(args, domainFilter)
	}
	if categoryFilter != "" {
		query += ` AND category=?`
		args = append(args, categoryFilter)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeInternal, "list shared pool", err)
	}
	defer rows.Close()

	var out []SharedListing
	for rows.Next() {
		var l SharedListing
		var contributor string
		if err := rows.Scan(&l.Key, &l.Value, &contributor, &l.Domain, &l.Category); err != nil {
			return nil, models.NewCoreError(models.ErrCodeInternal, "list shared pool scan", err)
		}
		l.Contributor = models.TenantID(contributor)
		out = append(out, l)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Namespaces used across the pipeline (spec §6 "Persisted state layout").
const (
	NSApiPatterns        = "api_patterns"
	NSDomainEntries      = "domain_entries"
	NSSelectorPatterns   = "selector_patterns"
	NSValidators         = "validators"
	NSPaginationPatterns = "pagination_patterns"
	NSFailures           = "failures"
	NSSuccessProfiles    = "success_profiles"
	NSSkills             = "skills"
	NSTrajectories       = "trajectories"
	NSPageCache          = "page_cache"
	NSDebugTraces        = "debug_traces"
	NSTenants            = "tenants"
	NSBrowserSessions    = "browser_sessions"
)
