package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxResponseBytes = 8 << 20

// Do executes req and classifies the outcome. On success the body is
// returned unmodified.
func Do(client *http.Client, providerID string, req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, TransportError(providerID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, TransportError(providerID, err)
	}
	return ParseResponse(providerID, resp.StatusCode, body)
}

// ParseResponse maps an HTTP status and body to a payload or a
// *ProviderError. Only a 2xx JSON object counts as a payload.
func ParseResponse(providerID string, status int, body []byte) (json.RawMessage, error) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, NewProviderError(ErrorAuthentication, providerID, fmt.Sprintf("status %d", status), nil)
	case status == http.StatusNotFound:
		return nil, NewProviderError(ErrorNotFound, providerID, "no record for domain", nil)
	case status == http.StatusTooManyRequests:
		return nil, NewProviderError(ErrorRateLimited, providerID, "quota exceeded", nil)
	case status >= 500:
		return nil, NewProviderError(ErrorProviderOutage, providerID, fmt.Sprintf("status %d", status), nil)
	case status < 200 || status >= 300:
		return nil, NewProviderError(ErrorBadData, providerID, fmt.Sprintf("unexpected status %d", status), nil)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, NewProviderError(ErrorBadData, providerID, "response is not a JSON object", nil)
	}
	return json.RawMessage(trimmed), nil
}
