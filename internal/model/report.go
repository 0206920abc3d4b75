package model

import "time"

// Report is the gated analysis response for one document version
type Report struct {
	DocumentID  string           `json:"document_id"`
	VersionID   string           `json:"version_id"`
	Source      string           `json:"source,omitempty"` // Path or name the document was loaded from
	Format      Format           `json:"format"`
	AnalyzedAt  time.Time        `json:"analyzed_at"`
	Artifacts   []ArtifactReport `json:"artifacts"`
	Publishable bool             `json:"publishable"` // Every artifact passed the publish gate
}

// ArtifactReport holds one generated artifact and its grounding.
// Items are withheld when the artifact fails the publish gate.
type ArtifactReport struct {
	Artifact  string             `json:"artifact"`
	PassID    string             `json:"pass_id,omitempty"`
	Items     []string           `json:"items,omitempty"`
	Citations []VerifiedCitation `json:"citations"`
	Grounding GroundingSummary   `json:"grounding"`
	Signals   []Signal           `json:"signals,omitempty"`
	Withheld  bool               `json:"withheld,omitempty"`
}

// Signal represents a diagnostic signal with transparent scoring data
type Signal struct {
	Type        SignalType     `json:"type"`           // Signal classification
	Severity    SignalSeverity `json:"severity"`       // info, warning, critical
	Description string         `json:"description"`    // Human-readable description
	Delta       float64        `json:"delta"`          // Contribution to the confidence
	Data        map[string]any `json:"data,omitempty"` // Transparent scoring data (formulas, inputs)
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalVerification SignalType = "verification"  // Quote found or not
	SignalMatchMethod  SignalType = "match_method"  // Exact, fuzzy or none
	SignalMalformed    SignalType = "malformed"     // Candidate could not be matched
	SignalReliability  SignalType = "reliability"   // Parser weight tier
	SignalSection      SignalType = "section"       // Section metadata bonus
	SignalPage         SignalType = "page"          // Page metadata bonus
	SignalQuoteLength  SignalType = "quote_length"  // Adequate length bonus
	SignalVerifiedRate SignalType = "verified_rate" // Aggregate verification bonus
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
