package match

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/groundcheck/internal/model"
)

// Matcher locates claimed quotations in document text
type Matcher struct {
	opts         Options
	threshold    float64
	tolerance    float64
	minTolerance int
	neighborhood int
	indexes      *IndexCache
}

// NewMatcher creates a matcher from configuration. indexes may be nil.
func NewMatcher(cfg model.MatchingConfig, indexes *IndexCache) *Matcher {
	threshold := cfg.FuzzyThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.85
	}
	tolerance := cfg.WindowTolerance
	if tolerance < 0 {
		tolerance = 0
	}
	minTolerance := cfg.MinWindowTolerance
	if minTolerance < 0 {
		minTolerance = 0
	}

	return &Matcher{
		opts:         Options{FoldAccents: cfg.FoldAccents},
		threshold:    threshold,
		tolerance:    tolerance,
		minTolerance: minTolerance,
		neighborhood: cfg.Neighborhood,
		indexes:      indexes,
	}
}

// Options returns the normalization options
func (m *Matcher) Options() Options {
	return m.opts
}

// Threshold returns the fuzzy acceptance threshold
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Fingerprint identifies every setting that can change a match result
func (m *Matcher) Fingerprint() string {
	return fmt.Sprintf("%s:t%.4f:w%.4f:m%d:n%d", m.opts.key(), m.threshold, m.tolerance, m.minTolerance, m.neighborhood)
}

// Prepare builds (or fetches from cache) the normalized index of text
func (m *Matcher) Prepare(text string) *Index {
	if m.indexes != nil {
		return m.indexes.Get(text, m.opts)
	}
	return Prepare(text, m.opts)
}

// Match determines whether claim's quotation occurs in text
func (m *Matcher) Match(text string, claim model.CandidateCitation) model.MatchResult {
	return m.MatchIndex(context.Background(), m.Prepare(text), claim)
}

// MatchIndex matches claim against a prepared index.
// Order: exact at the claimed start, first exact occurrence anywhere, best fuzzy window.
// Cancelling ctx abandons the fuzzy search and yields no match.
func (m *Matcher) MatchIndex(ctx context.Context, idx *Index, claim model.CandidateCitation) model.MatchResult {
	if idx == nil {
		return model.NoMatch()
	}
	if idx.opts != m.opts {
		idx = prepare(string(idx.orig), idx.hash, m.opts)
	}

	q := normalizeQuote(claim.QuoteText, m.opts)
	if len(q) == 0 {
		return model.NoMatch()
	}

	// 1. Exact at claimed position
	if start, end, ok := idx.matchAt(claim.ClaimedStart, q); ok {
		return model.MatchResult{
			Method:     model.MatchExact,
			Span:       &model.Span{Start: start, End: end},
			Similarity: 1.0,
		}
	}

	// 2. Exact elsewhere, first occurrence
	if p, ok := idx.find(q, 0); ok {
		start, end := idx.span(p, p+len(q))
		return model.MatchResult{
			Method:     model.MatchExact,
			Span:       &model.Span{Start: start, End: end},
			Similarity: 1.0,
			Relocated:  claim.ClaimedStart != nil,
		}
	}

	// 3. Fuzzy fallback
	if start, end, sim, ok := m.fuzzy(ctx, idx, q, claim.ClaimedStart); ok {
		return model.MatchResult{
			Method:     model.MatchFuzzy,
			Span:       &model.Span{Start: start, End: end},
			Similarity: sim,
		}
	}

	return model.NoMatch()
}

// matchAt checks whether q begins at the claimed original offset.
// The claimed end is approximate and not required to agree.
func (idx *Index) matchAt(claimedStart *int, q []rune) (int, int, bool) {
	if claimedStart == nil || *claimedStart < 0 || *claimedStart >= len(idx.orig) {
		return 0, 0, false
	}
	p := idx.toNorm[*claimedStart]
	if idx.origStart[p] != *claimedStart || p+len(q) > len(idx.runes) {
		return 0, 0, false
	}
	for i, r := range q {
		if idx.runes[p+i] != r {
			return 0, 0, false
		}
	}
	start, end := idx.span(p, p+len(q))
	return start, end, true
}

// find returns the normalized index of the first occurrence of q at or after from
func (idx *Index) find(q []rune, from int) (int, bool) {
	if from >= len(idx.runes) {
		return 0, false
	}
	offset := len(string(idx.runes[:from]))
	b := strings.Index(idx.text[offset:], string(q))
	if b < 0 {
		return 0, false
	}
	return idx.runeIndex(offset + b), true
}
