package model

import (
	"runtime"
	"strings"
	"time"
)

// Config is the complete groundcheck configuration
type Config struct {
	Matching    MatchingConfig    `yaml:"matching" mapstructure:"matching"`
	Scoring     ScoringConfig     `yaml:"scoring" mapstructure:"scoring"`
	Grounding   GroundingConfig   `yaml:"grounding" mapstructure:"grounding"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Storage     StorageConfig     `yaml:"storage" mapstructure:"storage"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Analysis    AnalysisConfig    `yaml:"analysis" mapstructure:"analysis"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
}

// MatchingConfig controls the text matcher
type MatchingConfig struct {
	FuzzyThreshold     float64       `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	WindowTolerance    float64       `yaml:"window_tolerance" mapstructure:"window_tolerance"`         // Fraction of quote length
	MinWindowTolerance int           `yaml:"min_window_tolerance" mapstructure:"min_window_tolerance"` // Code points
	Neighborhood       int           `yaml:"neighborhood" mapstructure:"neighborhood"`                 // 0 searches the whole document
	FoldAccents        bool          `yaml:"fold_accents" mapstructure:"fold_accents"`
	IndexCacheTTL      time.Duration `yaml:"index_cache_ttl" mapstructure:"index_cache_ttl"`
}

// ScoringConfig controls the confidence scorer
type ScoringConfig struct {
	MinQuoteLength int                `yaml:"min_quote_length" mapstructure:"min_quote_length"`
	ParserWeights  map[string]float64 `yaml:"parser_weights" mapstructure:"parser_weights"` // Keyed by format name
}

// GroundingConfig controls aggregation and the publish gate
type GroundingConfig struct {
	MinVerifiedFraction float64 `yaml:"min_verified_fraction" mapstructure:"min_verified_fraction"` // can_cite when verified/total >= this
	PublishThreshold    float64 `yaml:"publish_threshold" mapstructure:"publish_threshold"`         // can_publish when confidence >= this
	BonusPerVerified    float64 `yaml:"bonus_per_verified" mapstructure:"bonus_per_verified"`
	MaxBonus            float64 `yaml:"max_bonus" mapstructure:"max_bonus"`
	MaxInfoReasons      int     `yaml:"max_info_reasons" mapstructure:"max_info_reasons"` // 0 keeps all; warnings are never capped
}

// ConcurrencyConfig sizes the worker pools
type ConcurrencyConfig struct {
	Workers      int `yaml:"workers" mapstructure:"workers"`             // Per-pass citation workers
	BatchWorkers int `yaml:"batch_workers" mapstructure:"batch_workers"` // Documents processed at once
}

// StorageConfig selects the citation store
type StorageConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // sqlite, badger, none
	Path   string `yaml:"path" mapstructure:"path"`
}

// CacheConfig controls the match result cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskDir   string        `yaml:"disk_dir" mapstructure:"disk_dir"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
	RedisAddr string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisTTL  time.Duration `yaml:"redis_ttl" mapstructure:"redis_ttl"`
}

// AnalysisConfig controls the built-in candidate sources
type AnalysisConfig struct {
	Artifacts         []string `yaml:"artifacts" mapstructure:"artifacts"`
	MaxCitationLength int      `yaml:"max_citation_length" mapstructure:"max_citation_length"`
	MaxWarnings       int      `yaml:"max_warnings" mapstructure:"max_warnings"`
	MaxQuestions      int      `yaml:"max_questions" mapstructure:"max_questions"`
	UseLLM            bool     `yaml:"use_llm" mapstructure:"use_llm"`
}

// LLMConfig configures the optional LLM candidate source
type LLMConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"` // openai, ollama, "" (disabled)
	Model             string  `yaml:"model" mapstructure:"model"`
	APIKey            string  `yaml:"-" mapstructure:"api_key"` // Never written to disk
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Timeout           int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	HTTPProxy         string  `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy        string  `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy           string  `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string `yaml:"addr" mapstructure:"addr"`
	MetricsEnabled bool   `yaml:"metrics_enabled" mapstructure:"metrics_enabled"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	weights := make(map[string]float64)
	for f, w := range DefaultParserWeights() {
		weights[string(f)] = w
	}

	return Config{
		Matching: MatchingConfig{
			FuzzyThreshold:     0.85,
			WindowTolerance:    0.15,
			MinWindowTolerance: 4,
			FoldAccents:        false,
			IndexCacheTTL:      10 * time.Minute,
		},
		Scoring: ScoringConfig{
			MinQuoteLength: 10,
			ParserWeights:  weights,
		},
		Grounding: GroundingConfig{
			MinVerifiedFraction: 0.5,
			PublishThreshold:    0.5,
			BonusPerVerified:    0.02,
			MaxBonus:            0.1,
		},
		Concurrency: ConcurrencyConfig{
			Workers:      runtime.NumCPU(),
			BatchWorkers: 2,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "groundcheck.db",
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   24 * time.Hour,
			RedisTTL:  time.Hour,
		},
		Analysis: AnalysisConfig{
			Artifacts:         []string{"summary", "warnings", "questions"},
			MaxCitationLength: 500,
			MaxWarnings:       10,
			MaxQuestions:      8,
		},
		LLM: LLMConfig{
			Timeout:           30,
			MaxTokens:         1500,
			RequestsPerSecond: 1,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MetricsEnabled: true,
		},
	}
}

// ParserWeight returns the configured weight for format.
// The second result is false when the format fell back to the unknown weight.
// Keys are matched case-insensitively since viper lowercases map keys.
func (c ScoringConfig) ParserWeight(format Format) (float64, bool) {
	if format != FormatUnknown {
		if w, ok := c.lookup(format); ok {
			return w, true
		}
	}
	if w, ok := c.lookup(FormatUnknown); ok {
		return w, false
	}
	return DefaultParserWeights()[FormatUnknown], false
}

func (c ScoringConfig) lookup(format Format) (float64, bool) {
	for k, w := range c.ParserWeights {
		if strings.EqualFold(k, string(format)) {
			return w, true
		}
	}
	return 0, false
}
