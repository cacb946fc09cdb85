package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAccepts(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"acme.com", "acme.com"},
		{"  Google.COM ", "google.com"},
		{"sub-domain.example.org", "sub-domain.example.org"},
		{"bbc.co.uk", "bbc.co.uk"},
		{"xn--bcher-kva.de", "xn--bcher-kva.de"},
		{"a1.io", "a1.io"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Validate(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"empty", "   ", "Empty string"},
		{"too long", strings.Repeat("a", 250) + ".com", "Domain exceeds 253 characters"},
		{"leading dot", ".acme.com", "Cannot start or end with a dot"},
		{"trailing dot", "acme.com.", "Cannot start or end with a dot"},
		{"consecutive dots", "acme..com", "Consecutive dots are not allowed"},
		{"single label", "acme", "Missing top-level domain"},
		{"reserved example", "example.com", "Reserved or internal domain (example)"},
		{"reserved whole", "docker-test.com", "Reserved or internal domain (docker-test)"},
		{"reserved first label", "localhost.com", "Reserved or internal domain (localhost)"},
		{"ipv4", "192.168.1.10", "IP address provided instead of domain"},
		{"illegal characters", "ac_me.com", "Invalid domain structure or illegal characters"},
		{"leading hyphen", "-acme.com", "Invalid domain structure or illegal characters"},
		{"trailing hyphen", "acme-.com", "Invalid domain structure or illegal characters"},
		{"long label", strings.Repeat("a", 64) + ".com", "A label exceeds 63 characters"},
		{"numeric tld", "acme.c0m", "Invalid top-level domain (must be letters only, 2-63 chars)"},
		{"short tld", "acme.c", "Invalid top-level domain (must be letters only, 2-63 chars)"},
		{"duplicated tld", "google.com.com", "Duplicated TLD (e.g. google.com.com)"},
		{"bare public suffix", "co.uk", "Public suffix provided instead of a registrable domain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.input)
			require.Error(t, err)
			assert.Empty(t, got)

			var vErr *Error
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.reason, vErr.Reason)
		})
	}
}
