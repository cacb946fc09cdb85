// Package whoisxml fetches registration records from the WhoisXML
// WhoisService API.
package whoisxml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"domainintel/internal/analysis/providers"
)

const (
	ProviderID     = "whoisxml"
	DefaultBaseURL = "https://www.whoisxmlapi.com/whoisserver/WhoisService"
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
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return ProviderID }

func (c *Client) Fetch(ctx context.Context, domain string) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, providers.MissingCredentials(ProviderID, "WHOIS_API_KEY")
	}

	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("domainName", domain)
	q.Set("outputFormat", "JSON")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, ProviderID, "build request", err)
	}

	raw, err := providers.Do(c.http, ProviderID, req)
	if err != nil {
		return nil, err
	}
	// WhoisXML reports some failures with a 200 and an ErrorMessage body.
	var envelope struct {
		ErrorMessage *struct {
			ErrorCode string `json:"errorCode"`
			Msg       string `json:"msg"`
		} `json:"ErrorMessage"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.ErrorMessage != nil {
		return nil, providers.NewProviderError(providers.ErrorBadData, ProviderID, "error response "+envelope.ErrorMessage.ErrorCode, nil)
	}
	return raw, nil
}
