package service

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	n := NewPhoneNormalizer()

	tests := []struct {
		raw         string
		dcc         string
		want        string
		wantCountry string
	}{
		{"0155512345", "+1", "+1155512345", "+1"},
		{"5551234", "+1", "+15551234", "+1"},
		{"+15551234", "+1", "+15551234", "+1"},
		{"  (555) 123-4567 ", "+1", "+15551234567", "+1"},
		{"555.123.4567", "+1", "+15551234567", "+1"},
		{"+44 7700 900123", "+1", "+447700900123", "+44"},
		{"07700900123", "+44", "+447700900123", "+44"},
		{"+8801712345678", "+91", "+8801712345678", "+880"},
		{"15551234", "+1", "+115551234", "+1"},
	}

	for _, tt := range tests {
		got, err := n.Normalize(tt.raw, tt.dcc)
		if err != nil {
			t.Errorf("Normalize(%q, %q) error: %v", tt.raw, tt.dcc, err)
			continue
		}
		if got.Normalized != tt.want {
			t.Errorf("Normalize(%q, %q) = %q, want %q", tt.raw, tt.dcc, got.Normalized, tt.want)
		}
		if got.CountryCode != tt.wantCountry {
			t.Errorf("Normalize(%q).CountryCode = %q, want %q", tt.raw, got.CountryCode, tt.wantCountry)
		}
		if got.Raw != tt.raw {
			t.Errorf("Raw = %q, want %q", got.Raw, tt.raw)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := NewPhoneNormalizer()
	inputs := []string{"0155512345", "5551234", "+15551234", "(555) 123 4567", "+447700900123", "0 77 00"}
	for _, dcc := range []string{"+1", "+44", "+91"} {
		for _, raw := range inputs {
			first, err := n.Normalize(raw, dcc)
			if err != nil {
				t.Fatalf("Normalize(%q, %q): %v", raw, dcc, err)
			}
			second, err := n.Normalize(first.Normalized, dcc)
			if err != nil {
				t.Fatalf("Normalize(%q, %q) second pass: %v", first.Normalized, dcc, err)
			}
			if second.Normalized != first.Normalized {
				t.Errorf("not idempotent for %q/%q: %q then %q", raw, dcc, first.Normalized, second.Normalized)
			}
		}
	}
}

func TestNormalizeRejects(t *testing.T) {
	n := NewPhoneNormalizer()
	tests := []struct {
		raw string
		dcc string
	}{
		{"", "+1"},
		{"   ", "+1"},
		{"abc", "+1"},
		{"555-CALL-NOW", "+1"},
		{"+999123456", "+1"},
		{"12", "+1"},
		{"+1234567890123456", "+1"},
		{"5551234", "+999"},
		{"5551234", "1"},
		{"555+1234", "+1"},
	}
	for _, tt := range tests {
		if got, err := n.Normalize(tt.raw, tt.dcc); !errors.Is(err, ErrInvalidPhoneNumber) {
			t.Errorf("Normalize(%q, %q) = %v, %v; want ErrInvalidPhoneNumber", tt.raw, tt.dcc, got, err)
		}
	}
}

func TestCallingCodeForRegion(t *testing.T) {
	n := NewPhoneNormalizer()
	for region, want := range map[string]string{"US": "+1", "gb": "+44", "IN": "+91", "DE": "+49"} {
		got, err := n.CallingCodeForRegion(region)
		if err != nil || got != want {
			t.Errorf("CallingCodeForRegion(%q) = %q, %v; want %q", region, got, err, want)
		}
	}
	if _, err := n.CallingCodeForRegion("QQQ"); err == nil {
		t.Error("CallingCodeForRegion(QQQ) succeeded")
	}
	if _, err := n.CallingCodeForRegion("AQ"); err == nil {
		t.Error("CallingCodeForRegion(AQ) succeeded for a region without a calling code")
	}
}
