package horosafe

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"
)

func staticLookup(table map[string][]string) LookupFunc {
	return func(_ context.Context, host string) ([]string, error) {
		if addrs, ok := table[host]; ok {
			return addrs, nil
		}
		return nil, errors.New("no such host")
	}
}

func TestValidateURLContext(t *testing.T) {
	lookup := staticLookup(map[string][]string{
		"feeds.example.com": {"93.184.216.34"},
		"internal.example":  {"10.1.2.3"},
	})
	tests := []struct {
		url     string
		wantErr error
	}{
		{"https://feeds.example.com/rss", nil},
		{"http://feeds.example.com/atom.xml", nil},
		{"https://unresolvable.example.net/feed", nil},
		{"ftp://feeds.example.com/data", ErrUnsafeScheme},
		{"javascript:alert(1)", ErrUnsafeScheme},
		{"feed://feeds.example.com/rss", ErrUnsafeScheme},
		{"http://127.0.0.1/admin", ErrSSRF},
		{"http://10.0.0.1/internal", ErrSSRF},
		{"http://192.168.1.1/api", ErrSSRF},
		{"http://[::1]/api", ErrSSRF},
		{"http://169.254.169.254/latest/meta-data", ErrSSRF},
		{"http://localhost:8080/feed", ErrSSRF},
		{"https://internal.example/feed", ErrSSRF},
	}
	for _, tt := range tests {
		err := ValidateURLContext(context.Background(), tt.url, lookup)
		if tt.wantErr == nil && err != nil {
			t.Errorf("ValidateURLContext(%q) = %v, want nil", tt.url, err)
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("ValidateURLContext(%q) = %v, want %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestValidateURL_MissingHost(t *testing.T) {
	if err := ValidateURL("http:///feed"); err == nil {
		t.Fatal("expected error for URL without host")
	}
}

func TestLimitedReadAll(t *testing.T) {
	data := strings.Repeat("x", 100)
	got, err := LimitedReadAll(strings.NewReader(data), 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(got))
	}

	_, err = LimitedReadAll(strings.NewReader(data), 50)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestIsPrivateAddr(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.0.1", true},
		{"100.64.1.1", true},
		{"0.0.0.0", true},
		{"::ffff:10.0.0.1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"2606:4700::1111", false},
		{"::1", true},
	}
	for _, tt := range tests {
		addr := netip.MustParseAddr(tt.ip)
		if got := IsPrivateAddr(addr); got != tt.private {
			t.Errorf("IsPrivateAddr(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}

func TestValidateScheme(t *testing.T) {
	// WHAT: The relaxed verifier still rejects non-HTTP schemes.
	// WHY: Allowing private hosts must never allow file: or javascript: URLs.
	if err := ValidateScheme("http://127.0.0.1:8080/feed"); err != nil {
		t.Errorf("loopback should pass: %v", err)
	}
	for _, raw := range []string{"file:///etc/passwd", "javascript:alert(1)", "http:///feed"} {
		if err := ValidateScheme(raw); err == nil {
			t.Errorf("ValidateScheme(%q) should fail", raw)
		}
	}
}
