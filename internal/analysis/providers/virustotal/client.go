// Package virustotal fetches domain reports from the VirusTotal v3 API.
package virustotal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"domainintel/internal/analysis/providers"
)

const (
	ProviderID     = "virustotal"
	DefaultBaseURL = "https://www.virustotal.com/api/v3"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New builds a client. An empty apiKey is accepted; every Fetch then fails
// with a missing_credentials error.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return ProviderID }

func (c *Client) Fetch(ctx context.Context, domain string) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, providers.MissingCredentials(ProviderID, "VIRUSTOTAL_API_KEY")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/domains/"+url.PathEscape(domain), nil)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, ProviderID, "build request", err)
	}
	req.Header.Set("x-apikey", c.apiKey)

	return providers.Do(c.http, ProviderID, req)
}
