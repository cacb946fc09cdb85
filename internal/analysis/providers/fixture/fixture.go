// Package fixture provides deterministic stand-ins for both providers,
// selected when USE_MOCK_API is enabled.
package fixture

import (
	"context"
	"encoding/json"
)

// Reputation returns a canned VirusTotal domain report.
type Reputation struct{}

func (Reputation) Name() string { return "virustotal" }

func (Reputation) Fetch(_ context.Context, domain string) (json.RawMessage, error) {
	return json.Marshal(map[string]any{
		"data": map[string]any{
			"id": domain,
			"attributes": map[string]any{
				"last_analysis_stats": map[string]int{
					"malicious":  0,
					"harmless":   75,
					"suspicious": 1,
					"undetected": 4,
				},
				"reputation":       100,
				"popularity_ranks": map[string]any{"Cisco Umbrella": map[string]int{"rank": 1}},
				"tld":              "com",
				"creation_date":    915148800,
				"expiration_date":  1893456000,
				"last_analysis_results": map[string]any{
					"Mock Engine": map[string]string{
						"engine_name": "Mock Engine",
						"category":    "harmless",
						"result":      "clean",
					},
				},
			},
		},
	})
}

// Registration returns a canned WhoisXML record.
type Registration struct{}

func (Registration) Name() string { return "whoisxml" }

func (Registration) Fetch(_ context.Context, domain string) (json.RawMessage, error) {
	return json.Marshal(map[string]any{
		"WhoisRecord": map[string]any{
			"domainName":    domain,
			"createdDate":   "1997-09-15",
			"expiresDate":   "2028-09-13",
			"registrarName": "MockRegistrar",
			"registrant": map[string]string{
				"organization": "Mock Organization",
				"country":      "US",
			},
		},
	})
}
