// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"

	"github.com/gestao-presente/orquestra/pkg/policy"
	"github.com/gestao-presente/orquestra/pkg/textutil"
)

// ConfigError is a fatal startup misconfiguration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

type Config struct {
	ListenAddr   string `env:"LISTEN_ADDR" envDefault:":8000"`
	WebhookToken string `env:"WEBHOOK_TOKEN"`

	ChatwootAPIURL    string `env:"CHATWOOT_API_URL"`
	ChatwootAPIToken  string `env:"CHATWOOT_API_TOKEN"`
	ChatwootAccountID string `env:"CHATWOOT_ACCOUNT_ID"`

	ConfidenceThreshold float64 `env:"ORCHESTRATOR_CONFIDENCE_THRESHOLD" envDefault:"0.7"`
	CacheTTLSeconds     int     `env:"RESPONSE_CACHE_TTL_SECONDS" envDefault:"300"`
	CacheMaxItems       int     `env:"RESPONSE_CACHE_MAX_ITEMS" envDefault:"256"`

	// TeamsCSV restricts the directory to a subset of platform teams.
	// Empty means every team the platform reports.
	TeamsCSV         string `env:"ORCHESTRATOR_TEAMS"`
	DefaultHumanTeam string `env:"TEAM_DEFAULT_HUMAN" envDefault:"Suporte"`
	TeamRefreshCron  string `env:"TEAM_REFRESH_CRON"`

	UseLLMClassifier    bool   `env:"USE_LLM_CLASSIFIER" envDefault:"true"`
	DeferBareHumanToLLM bool   `env:"DEFER_BARE_HUMAN_TO_LLM" envDefault:"false"`
	LLMProvider         string `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMAPIKey           string `env:"LLM_API_KEY"`
	LLMAPIBase          string `env:"LLM_API_BASE"`
	LLMModel            string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`

	ClassifierTimeoutSeconds int `env:"CLASSIFIER_TIMEOUT_SECONDS" envDefault:"10"`
	SpecialistTimeoutSeconds int `env:"SPECIALIST_TIMEOUT_SECONDS" envDefault:"60"`

	LabelHuman        string `env:"CHATWOOT_LABEL_HUMANO" envDefault:"humano"`
	LabelOrchestrator string `env:"CHATWOOT_LABEL_IA_ORQUESTRADOR" envDefault:"ia_orquestrador"`
	LabelMec          string `env:"CHATWOOT_LABEL_IA_MEC" envDefault:"ia_mec"`
	LabelFailure      string `env:"CHATWOOT_LABEL_IA_FALHA" envDefault:"ia_falha"`

	Workers int `env:"ENGINE_WORKERS" envDefault:"4"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ChatwootAPIURL == "" {
		return &ConfigError{Field: "CHATWOOT_API_URL", Reason: "required"}
	}
	if c.ChatwootAPIToken == "" {
		return &ConfigError{Field: "CHATWOOT_API_TOKEN", Reason: "required"}
	}
	if c.ChatwootAccountID == "" {
		return &ConfigError{Field: "CHATWOOT_ACCOUNT_ID", Reason: "required"}
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return &ConfigError{Field: "ORCHESTRATOR_CONFIDENCE_THRESHOLD", Reason: "must be in [0, 1]"}
	}
	if c.CacheTTLSeconds <= 0 {
		return &ConfigError{Field: "RESPONSE_CACHE_TTL_SECONDS", Reason: "must be positive"}
	}
	if c.CacheMaxItems <= 0 {
		return &ConfigError{Field: "RESPONSE_CACHE_MAX_ITEMS", Reason: "must be positive"}
	}
	if c.Workers <= 0 {
		return &ConfigError{Field: "ENGINE_WORKERS", Reason: "must be positive"}
	}
	switch c.LLMProvider {
	case "openai", "anthropic":
	default:
		return &ConfigError{Field: "LLM_PROVIDER", Reason: "must be openai or anthropic"}
	}
	if c.LLMAPIKey == "" {
		return &ConfigError{Field: "LLM_API_KEY", Reason: "required"}
	}
	if c.TeamRefreshCron != "" && !gronx.New().IsValid(c.TeamRefreshCron) {
		return &ConfigError{Field: "TEAM_REFRESH_CRON", Reason: "invalid cron expression"}
	}
	return nil
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.ClassifierTimeoutSeconds) * time.Second
}

func (c *Config) SpecialistTimeout() time.Duration {
	return time.Duration(c.SpecialistTimeoutSeconds) * time.Second
}

// TeamNames returns the configured team subset, empty when the
// directory should take every platform team.
func (c *Config) TeamNames() []string {
	return textutil.ParseCSV(c.TeamsCSV)
}

func (c *Config) Labels() policy.Labels {
	return policy.Labels{
		Human:        c.LabelHuman,
		Orchestrator: c.LabelOrchestrator,
		Mec:          c.LabelMec,
		Failure:      c.LabelFailure,
	}
}
