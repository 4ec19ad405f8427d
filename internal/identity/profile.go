// Package identity holds the browser identities a crawler presents to the listing site.
package identity

import (
	"math/rand/v2"
	"net/http"
)

const (
	HeaderUserAgent          = "User-Agent"
	HeaderClientHintUA       = "Sec-CH-UA"
	HeaderClientHintPlatform = "Sec-CH-UA-Platform"
)

// Profile is the set of headers one real browser would send. Empty client hints are
// intentional: Firefox and Safari do not send them.
type Profile struct {
	UserAgent          string
	ClientHintUA       string
	ClientHintPlatform string
}

var pool = []Profile{
	{
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		ClientHintUA:       `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
		ClientHintPlatform: `"Windows"`,
	},
	{
		UserAgent:          "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		ClientHintUA:       `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
		ClientHintPlatform: `"macOS"`,
	},
	{
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
		ClientHintUA:       `"Chromium";v="124", "Microsoft Edge";v="124", "Not-A.Brand";v="99"`,
		ClientHintPlatform: `"Windows"`,
	},
	{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	},
	{
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4.1 Safari/605.1.15",
	},
}

// Random picks a profile uniformly from the pool.
func Random() Profile {
	return pool[rand.IntN(len(pool))]
}

// Apply writes the profile onto h. User-Agent is always set; client hints only when present.
func (p Profile) Apply(h http.Header) {
	h.Set(HeaderUserAgent, p.UserAgent)
	if p.ClientHintUA != "" {
		h.Set(HeaderClientHintUA, p.ClientHintUA)
	}
	if p.ClientHintPlatform != "" {
		h.Set(HeaderClientHintPlatform, p.ClientHintPlatform)
	}
}
