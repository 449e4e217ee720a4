package scope

import (
	"strings"
	"testing"
)

func TestMatches(t *testing.T) {
	deep := strings.Repeat("a.", 10) + "example.com"
	tooDeep := strings.Repeat("a.", 11) + "example.com"

	tests := []struct {
		name   string
		host   string
		target string
		want   bool
	}{
		{"exact", "example.com", "example.com", true},
		{"case_insensitive", "API.Example.COM", "example.com", true},
		{"subdomain", "a.b.example.com", "example.com", true},
		{"reverse_subdomain", "example.com", "a.b.example.com", true},
		{"no_dot_boundary", "evilexample.com", "example.com", false},
		{"unrelated", "other.com", "example.com", false},
		{"depth_ten", deep, "example.com", true},
		{"depth_eleven", tooDeep, "example.com", false},
		{"empty_host", "", "example.com", false},
		{"empty_target", "example.com", "", false},
		{"trailing_dot", "example.com.", "example.com", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.host, tt.target); got != tt.want {
				t.Fatalf("Matches(%q, %q) = %v; want %v", tt.host, tt.target, got, tt.want)
			}
		})
	}
}

func TestStripWWW(t *testing.T) {
	if got := StripWWW("WWW.Shop.test"); got != "shop.test" {
		t.Fatalf("StripWWW() = %q; want %q", got, "shop.test")
	}
	if got := StripWWW("api.shop.test"); got != "api.shop.test" {
		t.Fatalf("StripWWW() = %q; want %q", got, "api.shop.test")
	}
}
