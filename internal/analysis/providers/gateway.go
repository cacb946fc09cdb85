// Package providers fetches raw payloads from the reputation and
// registration providers.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"domainintel/internal/analysis/ports"
)

// Payloads are the unmodified provider responses for one domain.
type Payloads struct {
	Reputation   json.RawMessage
	Registration json.RawMessage
}

// Gateway pairs the two fetchers. Live clients or fixtures are chosen once
// when the gateway is built.
type Gateway struct {
	reputation   ports.Fetcher
	registration ports.Fetcher
}

func NewGateway(reputation, registration ports.Fetcher) (*Gateway, error) {
	if reputation == nil {
		return nil, errors.New("reputation fetcher is required")
	}
	if registration == nil {
		return nil, errors.New("registration fetcher is required")
	}
	return &Gateway{reputation: reputation, registration: registration}, nil
}

// Fetch calls both providers concurrently and waits for both. Any failure
// fails the whole fetch; the first error is returned.
func (g *Gateway) Fetch(ctx context.Context, domain string) (Payloads, error) {
	var out Payloads
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		raw, err := safeFetch(ctx, g.reputation, domain)
		if err != nil {
			return err
		}
		out.Reputation = raw
		return nil
	})
	eg.Go(func() error {
		raw, err := safeFetch(ctx, g.registration, domain)
		if err != nil {
			return err
		}
		out.Registration = raw
		return nil
	})

	if err := eg.Wait(); err != nil {
		return Payloads{}, err
	}
	return out, nil
}

// safeFetch turns a fetcher panic into an internal provider error.
func safeFetch(ctx context.Context, f ports.Fetcher, domain string) (raw json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewProviderError(ErrorInternal, f.Name(), "fetch panicked", fmt.Errorf("%v", r))
		}
	}()
	return f.Fetch(ctx, domain)
}
