package cache

import (
	"strings"
	"testing"
)

func TestHashIP(t *testing.T) {
	t.Parallel()

	addrs := []string{"192.168.1.100", "192.168.1.101", "::1", "2001:db8::7334", ""}
	seen := make(map[string]string, len(addrs))
	for _, ip := range addrs {
		h := hashIP(ip)
		if len(h) != 16 {
			t.Errorf("hashIP(%q) = %q, want 16 hex chars", ip, h)
		}
		if hashIP(ip) != h {
			t.Errorf("hashIP(%q) is not stable", ip)
		}
		if prev, dup := seen[h]; dup {
			t.Errorf("hashIP(%q) collides with %q", ip, prev)
		}
		seen[h] = ip
		if ip != "" && strings.Contains(h, ip) {
			t.Errorf("hashIP(%q) leaks the address", ip)
		}
	}
}

func TestCatalogPageKey_VersionScoped(t *testing.T) {
	t.Parallel()

	k1 := catalogPageKey(1, "q=beat&sort=new")
	k2 := catalogPageKey(2, "q=beat&sort=new")

	if k1 == k2 {
		t.Errorf("keys for different versions should differ, both %s", k1)
	}
	if !strings.HasPrefix(k1, "catalog:v1:") {
		t.Errorf("catalogPageKey() = %q, want prefix catalog:v1:", k1)
	}
	if !strings.HasPrefix(k2, "catalog:v2:") {
		t.Errorf("catalogPageKey() = %q, want prefix catalog:v2:", k2)
	}
}

func TestCatalogPageKey_HashesInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"plain", "sort=popular"},
		{"spaces and colons", "q=space: the final frontier"},
		{"long", strings.Repeat("x", 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			key := catalogPageKey(7, tt.key)
			// "catalog:v7:" followed by 12 bytes of SHA256 as hex
			if len(key) != len("catalog:v7:")+24 {
				t.Errorf("catalogPageKey(%q) length = %d", tt.key, len(key))
			}
			if catalogPageKey(7, tt.key) != key {
				t.Error("catalogPageKey should be deterministic")
			}
		})
	}
}
