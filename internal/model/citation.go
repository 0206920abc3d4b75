package model

import (
	"fmt"
	"strings"
	"time"
)

// CandidateCitation is a claim produced by the analysis layer that needs grounding
type CandidateCitation struct {
	DocumentID   string `json:"document_id"`
	VersionID    string `json:"version_id"`
	QuoteText    string `json:"quote_text"`
	ClaimedStart *int   `json:"claimed_char_start,omitempty"` // Approximate
	ClaimedEnd   *int   `json:"claimed_char_end,omitempty"`   // Approximate
	Section      string `json:"section,omitempty"`
	Page         *int   `json:"page,omitempty"`
	Claim        string `json:"claim,omitempty"`    // Assertion the quote supports
	Artifact     string `json:"artifact,omitempty"` // summary, warnings, questions
}

// Validate reports whether the candidate can be matched at all.
// Offsets beyond the document are not malformed; claimed positions are approximate.
func (c CandidateCitation) Validate() error {
	if strings.TrimSpace(c.QuoteText) == "" {
		return fmt.Errorf("%w: empty quote text", ErrMalformedCandidate)
	}
	if c.ClaimedStart != nil && *c.ClaimedStart < 0 {
		return fmt.Errorf("%w: negative start offset %d", ErrMalformedCandidate, *c.ClaimedStart)
	}
	if c.ClaimedEnd != nil {
		if c.ClaimedStart == nil {
			return fmt.Errorf("%w: end offset without start offset", ErrMalformedCandidate)
		}
		if *c.ClaimedEnd < *c.ClaimedStart {
			return fmt.Errorf("%w: end offset %d before start offset %d", ErrMalformedCandidate, *c.ClaimedEnd, *c.ClaimedStart)
		}
	}
	if c.Page != nil && *c.Page < 0 {
		return fmt.Errorf("%w: negative page %d", ErrMalformedCandidate, *c.Page)
	}
	return nil
}

// MatchMethod is how a quotation was located in the document
type MatchMethod string

const (
	MatchExact MatchMethod = "exact"
	MatchFuzzy MatchMethod = "fuzzy"
	MatchNone  MatchMethod = "none"
)

// Valid reports whether m is a known match method
func (m MatchMethod) Valid() bool {
	switch m {
	case MatchExact, MatchFuzzy, MatchNone:
		return true
	}
	return false
}

// Span is a half-open code point range
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// MatchResult is the Text Matcher output for one candidate.
// Exact implies Similarity 1.0; None implies a nil Span.
type MatchResult struct {
	Method     MatchMethod `json:"method"`
	Span       *Span       `json:"span,omitempty"`
	Similarity float64     `json:"similarity"`
	Relocated  bool        `json:"relocated,omitempty"` // Exact match found away from the claimed start
}

// NoMatch returns the canonical none result
func NoMatch() MatchResult {
	return MatchResult{Method: MatchNone}
}

// Location is where a verified citation sits in the document
type Location struct {
	Section   string `json:"section,omitempty"`
	Page      *int   `json:"page,omitempty"`
	CharStart *int   `json:"char_start,omitempty"`
	CharEnd   *int   `json:"char_end,omitempty"`
}

// VerifiedCitation is the durable record of one verified candidate
type VerifiedCitation struct {
	DocumentID        string      `json:"document_id,omitempty"`
	VersionID         string      `json:"version_id,omitempty"`
	SequenceIndex     int         `json:"sequence_index"`
	Verified          bool        `json:"verified"`
	MatchMethod       MatchMethod `json:"match_method"`
	Similarity        float64     `json:"similarity,omitempty"`
	Confidence        float64     `json:"confidence"`
	ConfidenceReasons []string    `json:"confidence_reasons"`
	QuoteText         string      `json:"quote_text"`
	Claim             string      `json:"claim,omitempty"`
	Location          Location    `json:"location"`
}

// VerificationPass is one verified and aggregated set of citations for an artifact.
// It is persisted as a unit.
type VerificationPass struct {
	PassID     string             `json:"pass_id"`
	DocumentID string             `json:"document_id"`
	VersionID  string             `json:"version_id"`
	Artifact   string             `json:"artifact"`
	CreatedAt  time.Time          `json:"created_at"`
	Citations  []VerifiedCitation `json:"citations"`
	Grounding  GroundingSummary   `json:"grounding"`
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}
