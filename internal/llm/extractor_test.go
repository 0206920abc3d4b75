package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/groundcheck/internal/model"
)

// MockProvider implements the Provider interface for testing
type MockProvider struct {
	name      string
	available bool
	response  *ExtractResponse
	err       error
	calls     int
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *MockProvider) IsAvailable(ctx context.Context) bool {
	return m.available
}

func TestNewExtractor_DisabledProvider(t *testing.T) {
	extractor, err := NewExtractor(Config{Provider: ""}, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if extractor.IsEnabled() {
		t.Error("Expected extractor to be disabled")
	}
	if extractor.ProviderName() != "" {
		t.Error("Expected empty provider name when disabled")
	}

	got, err := extractor.Extract(context.Background(), testDocument(), "summary", 5)
	if err != nil || got != nil {
		t.Errorf("Expected nil extraction and no error when disabled, got %v, %v", got, err)
	}
}

func TestNewExtractor_UnknownProvider(t *testing.T) {
	if _, err := NewExtractor(Config{Provider: "palm"}, nil); err == nil {
		t.Fatal("Expected error for unknown provider")
	}
}

func TestExtractor_ProviderUnavailable(t *testing.T) {
	mock := &MockProvider{name: "test-provider", available: false}
	extractor := NewExtractorWithProvider(mock, Config{}, nil)

	got, err := extractor.Extract(context.Background(), testDocument(), "summary", 5)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got.Enabled {
		t.Error("Expected extraction to be marked as disabled")
	}
	if len(got.Warnings) == 0 || !strings.Contains(got.Warnings[0], "not available") {
		t.Errorf("Expected unavailability warning, got %v", got.Warnings)
	}
	if mock.calls != 0 {
		t.Error("Expected no extraction call to an unavailable provider")
	}
}

func TestExtractor_Success(t *testing.T) {
	citations := make([]model.CandidateCitation, 4)
	for i := range citations {
		citations[i] = model.CandidateCitation{QuoteText: "Tenant shall pay rent", Artifact: "summary"}
	}
	mock := &MockProvider{
		name:      "test-provider",
		available: true,
		response: &ExtractResponse{
			Citations:  citations,
			Model:      "test-model",
			TokensUsed: 150,
		},
	}
	extractor := NewExtractorWithProvider(mock, Config{Model: "configured"}, nil)

	got, err := extractor.Extract(context.Background(), testDocument(), "summary", 3)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !got.Enabled || got.Provider != "test-provider" || got.Model != "test-model" {
		t.Errorf("Unexpected extraction metadata: %+v", got)
	}
	if len(got.Citations) != 3 {
		t.Errorf("Expected citations capped at 3, got %d", len(got.Citations))
	}
	if len(got.Warnings) != 1 || !strings.Contains(got.Warnings[0], "Dropped 1") {
		t.Errorf("Expected cap warning, got %v", got.Warnings)
	}
	if got.TokensUsed != 150 {
		t.Errorf("Unexpected token usage: %d", got.TokensUsed)
	}
}

func TestExtractor_ProviderErrorDegrades(t *testing.T) {
	mock := &MockProvider{
		name:      "test-provider",
		available: true,
		err:       errors.New("API rate limit exceeded"),
	}
	extractor := NewExtractorWithProvider(mock, Config{}, nil)

	got, err := extractor.Extract(context.Background(), testDocument(), "warnings", 5)
	if err != nil {
		t.Fatalf("Expected graceful degradation, got %v", err)
	}
	if !got.Enabled {
		t.Error("Expected extraction to be marked as enabled (but failed)")
	}
	if len(got.Citations) != 0 {
		t.Errorf("Expected no citations, got %d", len(got.Citations))
	}

	found := false
	for _, w := range got.Warnings {
		if strings.Contains(w, "failed") && strings.Contains(w, "rate limit") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected warning to mention error: %v", got.Warnings)
	}
}

func TestExtractor_CancelledContext(t *testing.T) {
	mock := &MockProvider{name: "test-provider", available: true, response: &ExtractResponse{}}
	extractor := NewExtractorWithProvider(mock, Config{RequestsPerSecond: 0.001}, nil)

	// Drain the single burst token so the next call must wait
	extractor.limiter.Allow("test-provider")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := extractor.Extract(ctx, testDocument(), "summary", 5); err == nil {
		t.Fatal("Expected error when the context is cancelled while rate limited")
	}
	if mock.calls != 0 {
		t.Error("Expected no provider call after cancellation")
	}
}
