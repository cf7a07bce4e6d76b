package config

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full run configuration, read once from the environment at
// startup and never mutated afterwards. All components receive it
// explicitly; nothing reads ambient environment state.
type Config struct {
	APIBaseURL  string `env:"TRANSCRIBE_URL"`
	BearerToken string `env:"TRANSCRIBE_BEARER_TOKEN"`
	TeamName    string `env:"TRANSCRIBE_TEAM_NAME" envDefault:"SELLER-BOT"`
	CallType    string `env:"TRANSCRIBE_CALL_TYPE" envDefault:"PNS"`

	RequestTimeout time.Duration `env:"TRANSCRIBE_TIMEOUT" envDefault:"60s"`
	MaxAttempts    int           `env:"TRANSCRIBE_MAX_ATTEMPTS" envDefault:"3"`
	Concurrency    int           `env:"TRANSCRIBE_CONCURRENCY" envDefault:"4"`

	InputPath  string `env:"INPUT_PATH" envDefault:"calls.csv"`
	OutputPath string `env:"OUTPUT_PATH" envDefault:"transcriptions.jsonl"`
	Resume     bool   `env:"RESUME" envDefault:"false"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "TRANSCRIBE_URL", value: c.APIBaseURL},
		{name: "TRANSCRIBE_BEARER_TOKEN", value: c.BearerToken},
	}
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("TRANSCRIBE_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("TRANSCRIBE_MAX_ATTEMPTS must be positive, got %d", c.MaxAttempts)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("TRANSCRIBE_CONCURRENCY must be positive, got %d", c.Concurrency)
	}
	return nil
}

// TokenFingerprint returns a short digest of the bearer token, safe to log.
func (c *Config) TokenFingerprint() string {
	if c.BearerToken == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(c.BearerToken))
	return fmt.Sprintf("%x", sum[:4])
}
