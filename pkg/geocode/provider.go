package geocode

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Provider represents a single geocoding backend.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
	Available() bool
}

// CascadeClient tries geocode providers in order until one matches.
type CascadeClient struct {
	providers []Provider
	cache     Cache
}

// CascadeOption configures the CascadeClient.
type CascadeOption func(*CascadeClient)

// WithCascadeCache enables result caching on the cascade client.
func WithCascadeCache(c Cache) CascadeOption {
	return func(cc *CascadeClient) {
		cc.cache = c
	}
}

// NewCascadeClient creates a CascadeClient that tries providers in order.
func NewCascadeClient(providers []Provider, opts ...CascadeOption) *CascadeClient {
	c := &CascadeClient{providers: providers}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Providers returns the names of the available providers in cascade order.
func (c *CascadeClient) Providers() []string {
	var names []string
	for _, p := range c.providers {
		if p.Available() {
			names = append(names, p.Name())
		}
	}
	return names
}

// Geocode implements Client. A provider error moves on to the next provider;
// the error is returned only when no provider produced a definitive answer.
func (c *CascadeClient) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	key := CacheKey(addr)

	if c.cache != nil {
		cached, err := c.cache.GetGeocode(ctx, key)
		if err != nil {
			zap.L().Debug("cascade: cache lookup failed", zap.Error(err))
		} else if cached != nil {
			zap.L().Debug("cascade: cache hit", zap.String("key", shortKey(key)), zap.Bool("matched", cached.Matched))
			return cached, nil
		}
	}

	var lastResult *Result
	var lastErr error
	for _, p := range c.providers {
		if !p.Available() {
			continue
		}
		result, err := p.Geocode(ctx, addr)
		if err != nil {
			zap.L().Debug("cascade: provider error, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if result != nil && result.Matched {
			c.store(ctx, key, result)
			return result, nil
		}
		if result != nil {
			lastResult = result
		}
	}

	if lastResult == nil {
		if lastErr == nil {
			lastErr = eris.New("geocode: no provider available")
		}
		return nil, lastErr
	}

	noMatch := &Result{Matched: false, Source: lastResult.Source}
	c.store(ctx, key, noMatch)
	return noMatch, nil
}

func (c *CascadeClient) store(ctx context.Context, key string, result *Result) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetGeocode(ctx, key, result); err != nil {
		zap.L().Warn("cascade: cache store failed", zap.Error(err))
	}
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
