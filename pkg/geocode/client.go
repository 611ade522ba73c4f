// Package geocode resolves free-text addresses to coordinates via OpenStreetMap
// Nominatim (primary) and Google (fallback).
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Client geocodes a single address. A nil error with Matched=false is the
// explicit not-found signal; a non-nil error means the lookup itself failed.
type Client interface {
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
}

// AddressInput represents an address to geocode.
type AddressInput struct {
	ID      string // Optional identifier for correlation in logs
	Street  string
	Number  string
	City    string
	State   string
	Country string
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude    float64
	Longitude   float64
	Source      string // "nominatim" or "google"
	Quality     string // "rooftop", "range", "centroid", "approximate"
	DisplayName string
	Matched     bool
}

// Option configures the client built by NewClient.
type Option func(*options)

type options struct {
	httpClient   *http.Client
	userAgent    string
	nominatimURL string
	minDelay     time.Duration
	googleKey    string
	cache        Cache
}

// WithHTTPClient sets a custom HTTP client for every provider.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithUserAgent sets the User-Agent sent to Nominatim, which rejects anonymous clients.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// WithNominatimURL points the Nominatim provider at a self-hosted instance.
func WithNominatimURL(u string) Option {
	return func(o *options) {
		o.nominatimURL = u
	}
}

// WithMinDelay sets the minimum delay between two requests to the same provider.
func WithMinDelay(d time.Duration) Option {
	return func(o *options) {
		o.minDelay = d
	}
}

// WithGoogleAPIKey enables the Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(o *options) {
		o.googleKey = key
	}
}

// WithCache stores every definitive answer (match or no match) in c.
func WithCache(c Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// NewClient builds a cascade of Nominatim then, if a key is configured, Google.
func NewClient(opts ...Option) *CascadeClient {
	o := options{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		userAgent:    "crimemap-cli",
		nominatimURL: nominatimSearchURL,
		minDelay:     time.Second, // Nominatim usage policy: at most 1 req/s
	}
	for _, opt := range opts {
		opt(&o)
	}

	providers := []Provider{
		NewNominatimProvider(o.httpClient, o.nominatimURL, o.userAgent, o.minDelay),
	}
	if o.googleKey != "" {
		providers = append(providers, NewGoogleProvider(o.httpClient, o.googleKey, o.minDelay))
	}

	var cascadeOpts []CascadeOption
	if o.cache != nil {
		cascadeOpts = append(cascadeOpts, WithCascadeCache(o.cache))
	}
	return NewCascadeClient(providers, cascadeOpts...)
}

// FormatOneLine joins the non-empty address parts: "Rua A, 10, Itapevi, SP, Brasil".
func FormatOneLine(addr AddressInput) string {
	parts := []string{addr.Street, addr.Number, addr.City, addr.State, addr.Country}
	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}
