package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"
)

// Insufficient-data policies.
const (
	// PolicyReport emits a minimum-tier report with a warning.
	PolicyReport = "report"
	// PolicyAbort fails the run.
	PolicyAbort = "abort"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	LogLevel string

	// Helius configuration
	HeliusAPIKey string
	HeliusAPIURL string // enhanced transactions API
	HeliusRPCURL string // DAS (getAssetsByOwner) endpoint
	HeliusRPS    float64

	// Solana RPC used for balance and stake account lookups
	SolanaRPCURL string

	// Text generation configuration
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// HTTP behavior for every external call
	HTTPTimeout    time.Duration
	HTTPMaxRetries int

	// Pipeline configuration
	MinTransactionAmount   float64
	MaxTransactions        int
	FetchLimit             int // qualifying transactions to page in
	FetchMaxRaw            int // hard cap on raw transactions, dust included
	InsufficientDataPolicy string

	// Scoring weights
	WeightActivity  float64
	WeightDiversity float64
	WeightStaking   float64
	WeightVolume    float64

	// NATS is optional; reports are only published when set.
	NATSURL string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Helius configuration
	cfg.HeliusAPIKey = os.Getenv("HELIUS_API_KEY")
	if cfg.HeliusAPIKey == "" {
		errs = append(errs, fmt.Errorf("HELIUS_API_KEY is required"))
	}
	cfg.HeliusAPIURL = getEnvOrDefault("HELIUS_API_URL", "https://api.helius.xyz")
	cfg.HeliusRPCURL = getEnvOrDefault("HELIUS_RPC_URL", "https://mainnet.helius-rpc.com")
	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")

	// OpenAI configuration
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required"))
	}
	cfg.OpenAIBaseURL = getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	cfg.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", "gpt-4.1-nano-2025-04-14")

	var err error
	if cfg.HeliusRPS, err = parseFloat("HELIUS_RPS", 5); err != nil {
		errs = append(errs, err)
	}
	if cfg.HTTPTimeout, err = parseDuration("HTTP_TIMEOUT", "30s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.HTTPMaxRetries, err = parseInt("HTTP_MAX_RETRIES", 0); err != nil {
		errs = append(errs, err)
	}

	// Pipeline configuration
	if cfg.MinTransactionAmount, err = parseFloat("MIN_TRANSACTION_AMOUNT", 0.1); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxTransactions, err = parseInt("MAX_TRANSACTIONS", 100); err != nil {
		errs = append(errs, err)
	}
	if cfg.FetchLimit, err = parseInt("FETCH_LIMIT", 500); err != nil {
		errs = append(errs, err)
	}
	if cfg.FetchMaxRaw, err = parseInt("FETCH_MAX_RAW", 10000); err != nil {
		errs = append(errs, err)
	}
	cfg.InsufficientDataPolicy = getEnvOrDefault("INSUFFICIENT_DATA_POLICY", PolicyReport)

	// Scoring weights
	if cfg.WeightActivity, err = parseFloat("WEIGHT_ACTIVITY", 0.3); err != nil {
		errs = append(errs, err)
	}
	if cfg.WeightDiversity, err = parseFloat("WEIGHT_DIVERSITY", 0.2); err != nil {
		errs = append(errs, err)
	}
	if cfg.WeightStaking, err = parseFloat("WEIGHT_STAKING", 0.2); err != nil {
		errs = append(errs, err)
	}
	if cfg.WeightVolume, err = parseFloat("WEIGHT_VOLUME", 0.3); err != nil {
		errs = append(errs, err)
	}

	cfg.NATSURL = os.Getenv("NATS_URL")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.HeliusAPIKey == "" {
		errs = append(errs, fmt.Errorf("HeliusAPIKey is required"))
	}

	if c.OpenAIAPIKey == "" {
		errs = append(errs, fmt.Errorf("OpenAIAPIKey is required"))
	}

	if c.HeliusAPIURL == "" || c.HeliusRPCURL == "" || c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("HeliusAPIURL, HeliusRPCURL and SolanaRPCURL are required"))
	}

	if !finite(c.HeliusRPS) || c.HeliusRPS <= 0 {
		errs = append(errs, fmt.Errorf("HeliusRPS must be a positive finite number"))
	}

	if c.HTTPTimeout < time.Second {
		errs = append(errs, fmt.Errorf("HTTPTimeout must be at least 1 second"))
	}

	if c.HTTPMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("HTTPMaxRetries cannot be negative"))
	}

	if !finite(c.MinTransactionAmount) {
		errs = append(errs, fmt.Errorf("MinTransactionAmount must be a finite number"))
	} else if c.MinTransactionAmount < 0 {
		errs = append(errs, fmt.Errorf("MinTransactionAmount cannot be negative"))
	}

	if c.MaxTransactions <= 0 {
		errs = append(errs, fmt.Errorf("MaxTransactions must be positive"))
	}

	if c.FetchLimit < c.MaxTransactions {
		errs = append(errs, fmt.Errorf("FetchLimit (%d) cannot be less than MaxTransactions (%d)",
			c.FetchLimit, c.MaxTransactions))
	}

	if c.FetchMaxRaw < c.FetchLimit {
		errs = append(errs, fmt.Errorf("FetchMaxRaw (%d) cannot be less than FetchLimit (%d)",
			c.FetchMaxRaw, c.FetchLimit))
	}

	if c.InsufficientDataPolicy != PolicyReport && c.InsufficientDataPolicy != PolicyAbort {
		errs = append(errs, fmt.Errorf("InsufficientDataPolicy must be %q or %q, got %q",
			PolicyReport, PolicyAbort, c.InsufficientDataPolicy))
	}

	weights := []float64{c.WeightActivity, c.WeightDiversity, c.WeightStaking, c.WeightVolume}
	switch {
	case !finite(weights...):
		errs = append(errs, fmt.Errorf("scoring weights must be finite numbers"))
	case c.WeightActivity < 0 || c.WeightDiversity < 0 || c.WeightStaking < 0 || c.WeightVolume < 0:
		errs = append(errs, fmt.Errorf("scoring weights cannot be negative"))
	case c.WeightActivity+c.WeightDiversity+c.WeightStaking+c.WeightVolume == 0:
		errs = append(errs, fmt.Errorf("at least one scoring weight must be non-zero"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
