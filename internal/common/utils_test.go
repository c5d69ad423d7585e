package common

import "testing"

func TestStripSpace(t *testing.T) {
	tests := map[string]string{
		"GCI001":        "GCI001",
		"  GCI001 ":     "GCI001",
		"GCI\n001":      "GCI001",
		"\tGCI 001\r\n": "GCI001",
		"":              "",
	}
	for in, want := range tests {
		if got := StripSpace(in); got != want {
			t.Errorf("StripSpace(%q) = %q, want %q", in, got, want)
		}
	}
}
