package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/crimemap-cli/internal/resilience"
)

const nominatimSearchURL = "https://nominatim.openstreetmap.org/search"

// nominatimPlace is one element of the Nominatim jsonv2 search response.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Type        string `json:"type"`
}

// NominatimProvider geocodes via an OpenStreetMap Nominatim search endpoint.
type NominatimProvider struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
}

// NewNominatimProvider creates a provider that waits at least minDelay between requests.
func NewNominatimProvider(hc *http.Client, baseURL, userAgent string, minDelay time.Duration) *NominatimProvider {
	if baseURL == "" {
		baseURL = nominatimSearchURL
	}
	return &NominatimProvider{
		httpClient: hc,
		baseURL:    baseURL,
		userAgent:  userAgent,
		limiter:    newLimiter(minDelay),
	}
}

// Name implements Provider.
func (p *NominatimProvider) Name() string { return "nominatim" }

// Available implements Provider.
func (p *NominatimProvider) Available() bool { return true }

// Geocode implements Provider.
func (p *NominatimProvider) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	oneLine := FormatOneLine(addr)
	if oneLine == "" {
		return &Result{Matched: false, Source: "nominatim"}, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := url.Values{
		"q":      {oneLine},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.CheckResponse(resp, "geocode: nominatim"); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim read body")
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse response")
	}
	if len(places) == 0 {
		return &Result{Matched: false, Source: "nominatim"}, nil
	}

	place := places[0]
	lat, err := strconv.ParseFloat(place.Lat, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse lat")
	}
	lon, err := strconv.ParseFloat(place.Lon, 64)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse lon")
	}

	return &Result{
		Latitude:    lat,
		Longitude:   lon,
		Source:      "nominatim",
		Quality:     nominatimQuality(place.Category, place.Type),
		DisplayName: place.DisplayName,
		Matched:     true,
	}, nil
}

// nominatimQuality maps an OSM feature category/type to our quality taxonomy.
func nominatimQuality(category, typ string) string {
	switch {
	case category == "building" || typ == "house":
		return "rooftop"
	case category == "highway":
		return "range"
	case category == "place" || category == "boundary":
		return "centroid"
	default:
		return "approximate"
	}
}

// newLimiter allows one request per minDelay with no bursting.
func newLimiter(minDelay time.Duration) *rate.Limiter {
	if minDelay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(minDelay), 1)
}
