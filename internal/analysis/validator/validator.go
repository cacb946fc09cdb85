// Package validator checks that user input names a public domain before any
// record is created for it.
package validator

import (
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const (
	maxDomainLength = 253
	maxLabelLength  = 63
)

var reserved = map[string]struct{}{
	"localhost":   {},
	"localdomain": {},
	"example":     {},
	"invalid":     {},
	"test":        {},
	"internal":    {},
	"lan":         {},
	"home":        {},
	"docker":      {},
	"docker-test": {},
}

// Error is a validation rejection with a human-readable reason.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "invalid domain: " + e.Reason
}

func reject(reason string) (string, error) {
	return "", &Error{Reason: reason}
}

// Validate trims and lowercases input and returns the normalized domain, or
// an *Error describing the first rule it breaks.
func Validate(input string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(input))

	if d == "" {
		return reject("Empty string")
	}
	if len(d) > maxDomainLength {
		return reject("Domain exceeds 253 characters")
	}
	if strings.HasPrefix(d, ".") || strings.HasSuffix(d, ".") {
		return reject("Cannot start or end with a dot")
	}
	if strings.Contains(d, "..") {
		return reject("Consecutive dots are not allowed")
	}

	labels := strings.Split(d, ".")
	if len(labels) < 2 {
		return reject("Missing top-level domain")
	}
	if _, ok := reserved[d]; ok {
		return reject(fmt.Sprintf("Reserved or internal domain (%s)", labels[0]))
	}
	if _, ok := reserved[labels[0]]; ok {
		return reject(fmt.Sprintf("Reserved or internal domain (%s)", labels[0]))
	}
	if isIPv4(labels) {
		return reject("IP address provided instead of domain")
	}

	for _, label := range labels {
		if !validLabel(label) {
			return reject("Invalid domain structure or illegal characters")
		}
	}
	for _, label := range labels {
		if len(label) > maxLabelLength {
			return reject("A label exceeds 63 characters")
		}
	}

	tld := labels[len(labels)-1]
	if !isLetters(tld) || len(tld) < 2 || len(tld) > maxLabelLength {
		return reject("Invalid top-level domain (must be letters only, 2-63 chars)")
	}
	if len(labels) >= 3 && tld == labels[len(labels)-2] {
		return reject("Duplicated TLD (e.g. google.com.com)")
	}

	if suffix, icann := publicsuffix.PublicSuffix(d); icann && suffix == d {
		return reject("Public suffix provided instead of a registrable domain")
	}

	return d, nil
}

func validLabel(label string) bool {
	if label == "" || label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}

func isIPv4(labels []string) bool {
	if len(labels) != 4 {
		return false
	}
	for _, l := range labels {
		if len(l) < 1 || len(l) > 3 {
			return false
		}
		for i := 0; i < len(l); i++ {
			if l[i] < '0' || l[i] > '9' {
				return false
			}
		}
	}
	return true
}

func isLetters(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}
