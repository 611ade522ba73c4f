package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Cache persists geocode answers across runs. GetGeocode returns (nil, nil)
// on a miss.
type Cache interface {
	GetGeocode(ctx context.Context, key string) (*Result, error)
	SetGeocode(ctx context.Context, key string, result *Result) error
}

// CacheKey hashes the address after case, accent and whitespace folding, so
// "Rua São João" and "RUA SAO  JOAO" share one cache entry.
func CacheKey(addr AddressInput) string {
	parts := []string{addr.Street, addr.Number, addr.City, addr.State, addr.Country}
	for i, p := range parts {
		parts[i] = foldKeyPart(p)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func foldKeyPart(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		return out
	}
	return s
}
