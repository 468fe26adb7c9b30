package dedup

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/tallyhq/tally/internal/types"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want types.Status
	}{
		{"0", types.StatusNew},
		{"2", types.StatusResolved},
		{"02", types.StatusResolved},
		{"  2  ", types.StatusResolved},
		{"0\n", types.StatusNew},
		{"1", types.StatusNew},
		{"7", types.StatusNew},
		{"-2", types.StatusNew},
		{"2.5", types.StatusNew},
		{"maybe", types.StatusNew},
		{"The status is 2", types.StatusNew},
		{"", types.StatusNew},
	}

	for _, tt := range tests {
		if got := parseStatus(tt.raw); got != tt.want {
			t.Errorf("parseStatus(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestTruncateForLog(t *testing.T) {
	if got := truncateForLog("short", 10); got != "short" {
		t.Errorf("Short strings must pass through, got %q", got)
	}

	got := truncateForLog("0123456789abcdef", 10)
	if got != "0123456789..." {
		t.Errorf("Expected 0123456789..., got %q", got)
	}

	// Truncating mid-rune must back off to a valid boundary
	got = truncateForLog(strings.Repeat("é", 10), 5)
	if !utf8.ValidString(got) {
		t.Errorf("Truncation split a rune: %q", got)
	}
	if got != "éé..." {
		t.Errorf("Expected éé..., got %q", got)
	}
}
