package virustotal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"domainintel/internal/analysis/providers"
)

func TestClientFetch(t *testing.T) {
	t.Run("sends the api key and returns the raw report", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/domains/acme.com", r.URL.Path)
			assert.Equal(t, "secret", r.Header.Get("x-apikey"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"id":"acme.com","attributes":{"reputation":3}}}`))
		}))
		defer srv.Close()

		raw, err := New(srv.URL, "secret", time.Second).Fetch(context.Background(), "acme.com")
		require.NoError(t, err)
		assert.JSONEq(t, `{"data":{"id":"acme.com","attributes":{"reputation":3}}}`, string(raw))
	})

	t.Run("missing api key fails without a request", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		}))
		defer srv.Close()

		_, err := New(srv.URL, "", time.Second).Fetch(context.Background(), "acme.com")
		require.Error(t, err)
		assert.Equal(t, providers.ErrorMissingCredentials, providers.GetCategory(err))
	})

	t.Run("rejected key", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"WrongCredentialsError"}}`))
		}))
		defer srv.Close()

		_, err := New(srv.URL, "bad", time.Second).Fetch(context.Background(), "acme.com")
		require.Error(t, err)
		assert.Equal(t, providers.ErrorAuthentication, providers.GetCategory(err))
	})
}

func TestClientName(t *testing.T) {
	assert.Equal(t, "virustotal", New("", "", time.Second).Name())
}
