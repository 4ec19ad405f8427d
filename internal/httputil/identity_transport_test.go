package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/drewfead/afisha-watcher/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnit_IdentityTransport_StampsEveryRequest(t *testing.T) {
	var seen []http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Clone())
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	profile := identity.Profile{
		UserAgent:          "test-chrome",
		ClientHintUA:       `"Chromium";v="124"`,
		ClientHintPlatform: `"Linux"`,
	}
	client := &http.Client{Transport: &IdentityTransport{
		Base:    server.Client().Transport,
		Profile: profile,
	}}

	for range 2 {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		req.Header.Set("Accept", "application/json")
		resp, err := client.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp.Body.Close()
		assert.Empty(t, req.Header.Get(identity.HeaderUserAgent), "caller's request is not mutated")
	}

	require.Len(t, seen, 2)
	for _, h := range seen {
		assert.Equal(t, "test-chrome", h.Get(identity.HeaderUserAgent))
		assert.Equal(t, `"Chromium";v="124"`, h.Get(identity.HeaderClientHintUA))
		assert.Equal(t, `"Linux"`, h.Get(identity.HeaderClientHintPlatform))
		assert.Equal(t, "application/json", h.Get("Accept"))
	}
}

func TestUnit_IdentityTransport_OmitsEmptyHints(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	t.Cleanup(server.Close)

	client := &http.Client{Transport: WithIdentity(server.Client().Transport, identity.Profile{UserAgent: "test-firefox"})}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "test-firefox", got.Get(identity.HeaderUserAgent))
	assert.Empty(t, got.Values(identity.HeaderClientHintUA))
	assert.Empty(t, got.Values(identity.HeaderClientHintPlatform))
}
