package safety

import (
	"context"
	"net"
	"testing"
)

type fakeResolver struct {
	addrs []net.IPAddr
	err   error
}

func (f fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return f.addrs, f.err
}

func TestValidateRejectsPrivateAddress(t *testing.T) {
	g := NewWithResolver(fakeResolver{addrs: []net.IPAddr{{IP: net.ParseIP("10.0.0.5")}}})
	if _, err := g.Validate(context.Background(), "http://internal.example.com/"); err == nil {
		t.Fatal("expected SSRF_BLOCKED error for private address, got nil")
	}
}

func TestValidateRejectsLoopback(t *testing.T) {
	g := NewWithResolver(fakeResolver{addrs: []net.IPAddr{{IP: net.ParseIP("127.0.0.1")}}})
	if _, err := g.Validate(context.Background(), "http://localhost/"); err == nil {
		t.Fatal("expected SSRF_BLOCKED error for loopback address, got nil")
	}
}

func TestValidateRejectsCGNAT(t *testing.T) {
	g := NewWithResolver(fakeResolver{addrs: []net.IPAddr{{IP: net.ParseIP("100.64.1.1")}}})
	if _, err := g.Validate(context.Background(), "http://cgnat.example.com/"); err == nil {
		t.Fatal("expected SSRF_BLOCKED error for CGNAT address, got nil")
	}
}

func TestValidateRejectsNonHTTPScheme(t *testing.T) {
	g := New()
	if _, err := g.Validate(context.Background(), "file:///etc/passwd"); err == nil {
		t.Fatal("expected INVALID_URL error for non-http scheme, got nil")
	}
}

func TestValidateAcceptsPublicAddress(t *testing.T) {
	g := NewWithResolver(fakeResolver{addrs: []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}})
	if _, err := g.Validate(context.Background(), "https://example.com/page"); err != nil {
		t.Fatalf("expected public address to validate, got error: %v", err)
	}
}

func TestDomainStripsWWWAndLowercases(t *testing.T) {
	g := NewWithResolver(fakeResolver{addrs: []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}})
	u, err := g.Validate(context.Background(), "https://WWW.Example.com/page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Domain(u); got != "example.com" {
		t.Fatalf("Domain() = %q, want %q", got, "example.com")
	}
}
