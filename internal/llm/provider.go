package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/groundcheck/internal/model"
	"github.com/ppiankov/groundcheck/internal/util"
)

// ErrNoCitations is returned when a response carries no parsable citation list
var ErrNoCitations = errors.New("no citation list in LLM response")

const defaultTimeout = 30 * time.Second

// maxPromptChars bounds the document excerpt sent to the model, in code points
const maxPromptChars = 24000

const systemPrompt = "You extract claims about legal documents. Every claim must be backed by a quotation copied verbatim from the document."

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Extract asks the model for claims and supporting quotations for one artifact
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// ExtractRequest contains the input for citation extraction
type ExtractRequest struct {
	// Document is the normalized document the quotes must come from
	Document *model.NormalizedDocument

	// Artifact selects the instructions: summary, warnings or questions
	Artifact string

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// MaxCitations caps the claims requested
	MaxCitations int
}

// ExtractResponse contains the parsed model output
type ExtractResponse struct {
	// Citations are unverified candidates; the verifier decides if they hold
	Citations []model.CandidateCitation

	// Content is the raw model output
	Content string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama or an OpenAI-compatible gateway)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// RequestsPerSecond throttles calls per provider; 0 is unlimited
	RequestsPerSecond float64

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:          "", // Disabled by default
		Timeout:           30,
		MaxTokens:         1500,
		RequestsPerSecond: 1,
	}
}

func newHTTPClient(config Config, fallback time.Duration) *http.Client {
	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = fallback
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		},
	}
}

func artifactInstructions(artifact string) string {
	switch artifact {
	case "warnings":
		return "List the provisions that create risk for the signing party: termination rights, penalties, liability, automatic renewal, restrictive covenants, dispute resolution."
	case "questions":
		return "List the questions a professional reviewer should ask before signing, each tied to the provision that raises it."
	default:
		return "Summarize the key obligations, payment terms, duration and termination conditions."
	}
}

// BuildPrompt constructs the default extraction prompt
func BuildPrompt(doc *model.NormalizedDocument, artifact string, maxCitations int) string {
	if maxCitations <= 0 {
		maxCitations = 10
	}

	text := []rune(doc.Text)
	truncated := false
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
		truncated = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", artifactInstructions(artifact))
	b.WriteString(`RULES:
1. Every item MUST include a quotation copied character for character from the document.
2. DO NOT paraphrase, merge or shorten quotations with ellipses.
3. If the document does not support an item, leave it out.
4. char_start is the approximate code point offset of the quotation, or null.
`)
	fmt.Fprintf(&b, "5. Return at most %d items.\n\n", maxCitations)
	b.WriteString(`Respond with a JSON array only:
[{"claim": "...", "quote": "...", "char_start": 0, "section": "...", "page": null}]

DOCUMENT:
`)
	b.WriteString(string(text))
	if truncated {
		b.WriteString("\n[... document truncated ...]")
	}
	return b.String()
}

type citationPayload struct {
	Claim     string `json:"claim"`
	Quote     string `json:"quote"`
	CharStart *int   `json:"char_start"`
	Section   string `json:"section"`
	Page      *int   `json:"page"`
}

// ParseCitations extracts the JSON citation list from a model response.
// Code fences and prose around the array are ignored.
func ParseCitations(content string, doc *model.NormalizedDocument, artifact string) ([]model.CandidateCitation, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, ErrNoCitations
	}

	var payload []citationPayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCitations, err)
	}

	citations := make([]model.CandidateCitation, 0, len(payload))
	for _, p := range payload {
		citations = append(citations, model.CandidateCitation{
			DocumentID:   doc.DocumentID,
			VersionID:    doc.VersionID,
			QuoteText:    p.Quote,
			ClaimedStart: p.CharStart,
			Section:      p.Section,
			Page:         p.Page,
			Claim:        p.Claim,
			Artifact:     artifact,
		})
	}
	return citations, nil
}

func resolveModel(req ExtractRequest, config Config, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	if config.Model != "" {
		return config.Model
	}
	return fallback
}

func resolveMaxTokens(req ExtractRequest, config Config) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if config.MaxTokens > 0 {
		return config.MaxTokens
	}
	return 1500
}
