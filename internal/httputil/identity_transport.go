package httputil

import (
	"net/http"

	"github.com/drewfead/afisha-watcher/internal/identity"
)

// IdentityTransport is an http.RoundTripper that stamps every outgoing request with one
// browser identity. The request is cloned so callers' headers are never mutated.
// Headers already set on the request other than the identity ones are left alone.
type IdentityTransport struct {
	Base    http.RoundTripper
	Profile identity.Profile
}

// RoundTrip implements http.RoundTripper.
func (t *IdentityTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	out := req.Clone(req.Context())
	t.Profile.Apply(out.Header)

	return base.RoundTrip(out)
}

// WithIdentity wraps base so every request carries profile.
func WithIdentity(base http.RoundTripper, profile identity.Profile) http.RoundTripper {
	return &IdentityTransport{Base: base, Profile: profile}
}
