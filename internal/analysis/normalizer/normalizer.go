// Package normalizer reduces raw reputation and registration provider
// payloads to a models.Summary.
//
// Every field is resolved through a fixed priority chain: the first
// candidate that is present and not a placeholder wins. The functions here
// are pure; the same payloads always produce the same summary.
package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"domainintel/internal/analysis/models"
)

const unknownDomain = "unknown"

// ParseError reports a stored payload that is not valid JSON.
type ParseError struct {
	Payload string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s payload: %v", e.Payload, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Normalize validates both raw payloads and summarizes them. An empty
// payload is treated as absent; malformed JSON returns a *ParseError.
func Normalize(domain string, reputationRaw, registrationRaw []byte) (models.Summary, error) {
	if err := validate("reputation", reputationRaw); err != nil {
		return models.Summary{}, err
	}
	if err := validate("registration", registrationRaw); err != nil {
		return models.Summary{}, err
	}
	return Summarize(domain, reputationRaw, registrationRaw), nil
}

func validate(name string, raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if !json.Valid(raw) {
		var v any
		err := json.Unmarshal(raw, &v)
		return &ParseError{Payload: name, Err: err}
	}
	return nil
}

// Summarize merges two payloads that are already known to be valid JSON
// (or empty). A payload carrying an "error" member yields a zeroed summary.
func Summarize(domain string, reputationRaw, registrationRaw []byte) models.Summary {
	vtRoot := object(reputationRaw)
	whoisRoot := object(registrationRaw)

	if truthy(vtRoot.get("error")) || truthy(whoisRoot.get("error")) {
		return models.Summary{Domain: firstString(domain, unknownDomain)}
	}

	vt := vtRoot
	if attrs := vtRoot.obj("data").obj("attributes"); attrs != nil {
		vt = attrs
	} else if attrs := vtRoot.obj("attributes"); attrs != nil {
		vt = attrs
	}

	whois := whoisRoot
	if rec := whoisRoot.obj("WhoisRecord"); rec != nil {
		whois = rec
	}

	return models.Summary{
		Domain: firstString(
			clean(jsonString(domain)),
			clean(vtRoot.obj("data").get("id")),
			clean(whois.get("domainName")),
			unknownDomain,
		),
		VT:    summarizeReputation(vt),
		Whois: summarizeRegistration(whois),
	}
}

func summarizeReputation(vt obj) models.VTSummary {
	stats := vt.obj("last_analysis_stats")

	malicious, ok := stats.int("malicious")
	if !ok {
		malicious, _ = vt.int("numberOfDetection")
	}

	var scanners int64
	if stats != nil {
		for _, v := range stats {
			if n, ok := number(v); ok {
				scanners += n
			}
		}
	} else {
		scanners, _ = vt.int("numberOfScanners")
	}

	harmless, ok := stats.int("harmless")
	if !ok && scanners > 0 {
		harmless = scanners - malicious
	}
	suspicious, _ := stats.int("suspicious")
	undetected, _ := stats.int("undetected")

	out := models.VTSummary{
		Malicious:        malicious,
		Harmless:         harmless,
		Suspicious:       suspicious,
		Undetected:       undetected,
		TLD:              clean(vt.get("tld")),
		CreationDate:     formatDate(vt.get("creation_date")),
		ExpirationDate:   formatDate(vt.get("expiration_date")),
		LastAnalysisDate: formatDate(vt.get("last_analysis_date")),
	}
	if n, ok := vt.int("reputation"); ok {
		out.Reputation = &n
	}
	if ranks := vt.get("popularity_ranks"); object(ranks) != nil {
		if n, ok := object(firstMember(ranks)).int("rank"); ok {
			out.Rank = &n
		}
	} else if n, ok := vt.int("rank"); ok {
		out.Rank = &n
	}
	return out
}

func summarizeRegistration(whois obj) models.WhoisSummary {
	registry := whois.obj("registryData")
	registrant := whois.obj("registrant")
	registryRegistrant := registry.obj("registrant")

	return models.WhoisSummary{
		CreatedDate: firstDate(
			whois.get("createdDate"),
			whois.get("dateCreated"),
			registry.get("createdDate"),
			whois.get("createdDateNormalized"),
		),
		ExpiresDate: firstDate(
			whois.get("expiresDate"),
			whois.get("expiredOn"),
			registry.get("expiresDate"),
			whois.get("expiresDateNormalized"),
		),
		Registrar: firstString(
			clean(whois.get("registrarName")),
			clean(registry.get("registrarName")),
		),
		RegistrantCountry: firstString(
			clean(registrant.get("country")),
			clean(registryRegistrant.get("country")),
		),
		Organization: firstString(
			clean(registrant.get("organization")),
			clean(whois.get("organization")),
			clean(whois.get("ownerName")),
			clean(registryRegistrant.get("organization")),
		),
	}
}

// firstDate returns the first candidate that formats as a calendar date.
func firstDate(candidates ...json.RawMessage) string {
	for _, c := range candidates {
		if d := formatDate(c); d != "" {
			return d
		}
	}
	return ""
}

func firstString(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

func jsonString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
