package cache

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/ppiankov/groundcheck/internal/model"
)

// MatchCache stores Text Matcher results keyed by document hash and candidate
type MatchCache struct {
	cache Cache
}

// NewMatchCache wraps c; a nil c yields a cache that never hits
func NewMatchCache(c Cache) *MatchCache {
	return &MatchCache{cache: c}
}

// MatchKey derives the key for one candidate against one document.
// normalization identifies the matcher options that produced the result.
func MatchKey(documentHash, normalization string, claim model.CandidateCitation) string {
	return CacheKey("match", documentHash, normalization, claim.QuoteText, optInt(claim.ClaimedStart), optInt(claim.ClaimedEnd))
}

// Get returns a cached match result
func (m *MatchCache) Get(ctx context.Context, key string) (model.MatchResult, bool) {
	if m == nil || m.cache == nil {
		return model.MatchResult{}, false
	}
	data, ok := m.cache.Get(ctx, key)
	if !ok {
		return model.MatchResult{}, false
	}
	var res model.MatchResult
	if err := json.Unmarshal(data, &res); err != nil || !res.Method.Valid() {
		return model.MatchResult{}, false
	}
	return res, true
}

// Put stores a match result with the default TTL
func (m *MatchCache) Put(ctx context.Context, key string, res model.MatchResult) error {
	if m == nil || m.cache == nil {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return m.cache.Set(ctx, key, data, 0)
}

func optInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
