// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ideasim/prompts"
	"ideasim/usage"
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config is the resolved service configuration.
type Config struct {
	MongoDBURI      string
	MongoDBDatabase string

	LLMProvider  string
	LLMBaseURL   string
	LLMAPIKey    string
	GeminiAPIKey string
	PrimaryModel string
	GeminiModel  string
	PromptIDs    prompts.IDs

	RateLimit      float64
	MaxConcurrency int
	CallTimeout    time.Duration
	RunTimeout     time.Duration
	PriceTableFile string

	NATSURL        string
	AllowedOrigins []string
	Port           string
	MockFallback   bool
	TraceReuse     bool
}

// Load reads a .env file when one is present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, using environment variables", "component", "config")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		MongoDBURI:      GetMongoDBURI(),
		MongoDBDatabase: getString("MONGODB_DATABASE", "ideasim"),
		LLMProvider:     strings.ToLower(getString("LLM_PROVIDER", ProviderOpenAI)),
		LLMBaseURL:      getString("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:       os.Getenv("LLM_API_KEY"),
		GeminiAPIKey:    GetGeminiAPIKey(),
		PrimaryModel:    getString("PRIMARY_MODEL", "gpt-4o-mini"),
		GeminiModel:     GetGeminiModel(),
		PromptIDs: prompts.IDs{
			Director: getString("PROMPT_DIRECTOR_ID", prompts.DirectorLocal),
			Profile:  getString("PROMPT_PROFILE_ID", prompts.ProfileLocal),
			Response: getString("PROMPT_RESPONSE_ID", prompts.ResponseLocal),
			Trace:    getString("PROMPT_TRACE_ID", prompts.TraceLocal),
			Summary:  getString("PROMPT_SUMMARY_ID", prompts.SummaryLocal),
		},
		PriceTableFile: os.Getenv("PRICE_TABLE_FILE"),
		NATSURL:        os.Getenv("NATS_URL"),
		AllowedOrigins: GetAllowedOrigins(),
		Port:           getString("PORT", "8080"),
	}

	var err error
	if cfg.RateLimit, err = getFloat("LLM_RATE_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrency, err = getInt("MAX_CONCURRENCY", 8); err != nil {
		return nil, err
	}
	if cfg.CallTimeout, err = getDuration("CALL_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.RunTimeout, err = getDuration("RUN_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MockFallback, err = getBool("SIM_MOCK_FALLBACK", false); err != nil {
		return nil, err
	}
	if cfg.TraceReuse, err = getBool("TRACE_REUSE", false); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.LLMProvider)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("MAX_CONCURRENCY must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("LLM_RATE_LIMIT must not be negative, got %g", c.RateLimit)
	}
	return nil
}

// Model is the model used for every call of the configured provider.
func (c *Config) Model() string {
	if c.LLMProvider == ProviderGemini {
		return c.GeminiModel
	}
	return c.PrimaryModel
}

// Prices returns the price table, read from PriceTableFile when set.
func (c *Config) Prices() (usage.PriceTable, error) {
	if c.PriceTableFile == "" {
		return usage.DefaultPrices(), nil
	}
	return usage.LoadPriceTable(c.PriceTableFile)
}

// GetGeminiModel returns the Gemini model, "gemini-2.5-flash" by default.
func GetGeminiModel() string {
	return getString("GEMINI_MODEL", "gemini-2.5-flash")
}

func GetGeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

func GetMongoDBURI() string {
	return os.Getenv("MONGODB_URI")
}

// GetAllowedOrigins returns the comma-separated CORS origins. Empty means
// every origin is allowed.
func GetAllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

// getDuration accepts Go durations ("90s") or a bare number of seconds.
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
