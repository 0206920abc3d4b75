package model

// GroundingSummary aggregates the verified citations of one analysis pass
type GroundingSummary struct {
	Confidence        float64  `json:"confidence"`
	ConfidenceReasons []string `json:"confidence_reasons"`
	VerifiedCount     int      `json:"verified_count"`
	CitationCount     int      `json:"citation_count"`
	ExactMatches      int      `json:"exact_matches"`
	FuzzyMatches      int      `json:"fuzzy_matches"`
	CanCite           bool     `json:"can_cite"`
	CanPublish        bool     `json:"can_publish"` // Publish gate the analysis layer must check
}

// DefaultParserWeights returns the declared reliability per source format
func DefaultParserWeights() map[Format]float64 {
	return map[Format]float64{
		FormatTXT:     1.0,
		FormatHTML:    0.95,
		FormatDOCX:    0.9,
		FormatPDF:     0.75,
		FormatUnknown: 0.5,
	}
}
