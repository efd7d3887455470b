package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is loaded once at startup and passed into constructors; nothing
// reads the environment after Load returns.
type Config struct {
	Env        string `env:"APP_ENV" envDefault:"development"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	DatabaseURL string `env:"DATABASE_URL"`

	// ClaimBaseURL prefixes claim links embedded in outreach emails.
	ClaimBaseURL string `env:"CLAIM_BASE_URL" envDefault:"https://app.capmatch.example"`
	// SignupURL is the generic fallback when a recipient has no claim code.
	SignupURL string `env:"SIGNUP_URL" envDefault:"https://app.capmatch.example/signup"`

	// OrgBlacklist filters candidates whose name contains any of these
	// substrings (case-insensitive) out of ranking results.
	OrgBlacklist []string `env:"ORG_BLACKLIST" envSeparator:","`

	DispatchWorkers int           `env:"DISPATCH_WORKERS" envDefault:"4"`
	DispatchTimeout time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"2m"`

	EmailEndpoint string `env:"EMAIL_ENDPOINT"`
	EmailAPIKey   string `env:"EMAIL_API_KEY"`
	EmailFrom     string `env:"EMAIL_FROM" envDefault:"outreach@capmatch.example"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DatabaseURL == "" {
		// Not fatal for early local runs; warn via error value so callers can decide.
		return cfg, fmt.Errorf("DATABASE_URL not set")
	}
	return cfg, nil
}
