package static

import (
	"testing"

	"github.com/fetchkit/browsecore/models"
)

func TestExtractTitle(t *testing.T) {
	title := ExtractTitle(`<html><head><title>Hello</title></head><body>hi</body></html>`)
	if title != "Hello" {
		t.Fatalf("ExtractTitle = %q, want %q", title, "Hello")
	}
}

func TestExtractTitleReturnsEmptyWhenMissing(t *testing.T) {
	if got := ExtractTitle(`<html><body>no title here</body></html>`); got != "" {
		t.Fatalf("ExtractTitle = %q, want empty", got)
	}
}

func TestJarIsScopedPerTenantAndProfile(t *testing.T) {
	r := New()
	jarA := r.jarFor(models.TenantID("tenant-a"), "default")
	jarB := r.jarFor(models.TenantID("tenant-b"), "default")
	if jarA == jarB {
		t.Fatal("different tenants should not share a cookie jar")
	}

	jarA2 := r.jarFor(models.TenantID("tenant-a"), "default")
	if jarA != jarA2 {
		t.Fatal("the same (tenant, profile) should reuse the same jar")
	}

	jarAOther := r.jarFor(models.TenantID("tenant-a"), "other-profile")
	if jarA == jarAOther {
		t.Fatal("different session profiles for the same tenant should not share a jar")
	}
}
