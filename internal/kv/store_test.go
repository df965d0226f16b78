package kv

import (
	"context"
	"testing"

	"github.com/fetchkit/browsecore/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTenantIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tenantA := models.TenantID("tenant-a")
	tenantB := models.TenantID("tenant-b")

	if err := s.Put(ctx, tenantA, NSDomainEntries, "reddit.com", []byte("secret-a"), EntryMeta{}); err != nil {
		t.Fatalf("put tenant a: %v", err)
	}

	if _, ok, err := s.Get(ctx, tenantB, NSDomainEntries, "reddit.com"); err != nil {
		t.Fatalf("get tenant b: %v", err)
	} else if ok {
		t.Fatal("tenant b read an entry written by tenant a under the same key")
	}

	value, ok, err := s.Get(ctx, tenantA, NSDomainEntries, "reddit.com")
	if err != nil {
		t.Fatalf("get tenant a: %v", err)
	}
	if !ok || string(value) != "secret-a" {
		t.Fatalf("tenant a could not read back its own entry: ok=%v value=%q", ok, value)
	}

	keysB, err := s.Keys(ctx, tenantB, NSDomainEntries)
	if err != nil {
		t.Fatalf("keys tenant b: %v", err)
	}
	if len(keysB) != 0 {
		t.Fatalf("tenant b namespace should be empty, got %v", keysB)
	}
}

func TestSharedPoolRequiresOptIn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	contributor := models.TenantID("contributor")

	err := s.ContributeShared(ctx, contributor, NSApiPatterns, "reddit-comments", []byte("pattern"), "reddit.com", "social")
	if err == nil {
		t.Fatal("expected contribution to fail before opting into share_patterns")
	}

	if err := s.SetTenantPolicy(ctx, models.TenantPolicy{TenantID: contributor, SharePatterns: true}); err != nil {
		t.Fatalf("set policy: %v", err)
	}
	if err := s.ContributeShared(ctx, contributor, NSApiPatterns, "reddit-comments", []byte("pattern"), "reddit.com", "social"); err != nil {
		t.Fatalf("contribute after opt-in: %v", err)
	}

	consumer := models.TenantID("consumer")
	listing, err := s.ListShared(ctx, consumer, NSApiPatterns, "", "")
	if err != nil {
		t.Fatalf("list shared: %v", err)
	}
	if len(listing) != 0 {
		t.Fatal("consumer without consume_shared opt-in should see nothing")
	}

	if err := s.SetTenantPolicy(ctx, models.TenantPolicy{TenantID: consumer, ConsumeShared: true}); err != nil {
		t.Fatalf("set consumer policy: %v", err)
	}
	listing, err = s.ListShared(ctx, consumer, NSApiPatterns, "", "")
	if err != nil {
		t.Fatalf("list shared after opt-in: %v", err)
	}
	if len(listing) != 1 || listing[0].Contributor != contributor {
		t.Fatalf("expected one entry attributed to %q, got %+v", contributor, listing)
	}
}

func TestSharedPoolDomainFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	contributor := models.TenantID("contributor")
	consumer := models.TenantID("consumer")

	if err := s.SetTenantPolicy(ctx, models.TenantPolicy{TenantID: contributor, SharePatterns: true}); err != nil {
		t.Fatalf("set contributor policy: %v", err)
	}
	if err := s.SetTenantPolicy(ctx, models.TenantPolicy{TenantID: consumer, ConsumeShared: true}); err != nil {
		t.Fatalf("set consumer policy: %v", err)
	}
	if err := s.ContributeShared(ctx, contributor, NSApiPatterns, "reddit", []byte("p1"), "reddit.com", "social"); err != nil {
		t.Fatalf("contribute reddit: %v", err)
	}
	if err := s.ContributeShared(ctx, contributor, NSApiPatterns, "npm", []byte("p2"), "npmjs.com", "package-registry"); err != nil {
		t.Fatalf("contribute npm: %v", err)
	}

	listing, err := s.ListShared(ctx, consumer, NSApiPatterns, "npmjs.com", "")
	if err != nil {
		t.Fatalf("list shared filtered: %v", err)
	}
	if len(listing) != 1 || listing[0].Key != "npm" {
		t.Fatalf("expected only the npmjs.com entry, got %+v", listing)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tenant := models.TenantID("t1")

	wantErr := errRollback{}
	err := s.Transaction(ctx, func(tx *Tx) error {
		if err := tx.Put(tenant, NSSkills, "skill-1", []byte("v"), EntryMeta{}); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	ok, err := s.Has(ctx, tenant, NSSkills, "skill-1")
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if ok {
		t.Fatal("entry should not persist after a rolled-back transaction")
	}
}

type errRollback struct{}

func (errRollback) Error() string { return "forced rollback" }

func TestClearAndCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tenant := models.TenantID("t1")

	for _, k := range []string{"a", "b", "c"} {
		if err := s.Put(ctx, tenant, NSFailures, k, []byte("x"), EntryMeta{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	n, err := s.Count(ctx, tenant, NSFailures)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}

	if err := s.Clear(ctx, tenant, NSFailures); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, err = s.Count(ctx, tenant, NSFailures)
	if err != nil {
		t.Fatalf("count after clear: %v", err)
	}
	if n != 0 {
		t.Fatalf("count after clear = %d, want 0", n)
	}
}
