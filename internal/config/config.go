package config

import (
	"fmt"
	"os"
	"time"

	"challenge-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Log struct {
		Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Questions struct {
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"questions"`
	Scoring domain.PointsPolicy `yaml:"scoring"`
	Expiry  struct {
		Schedule       string `yaml:"schedule"`
		InviteTTL      string `yaml:"invite_ttl"`
		MatchmakingTTL string `yaml:"matchmaking_ttl"`
		StuckAfter     string `yaml:"stuck_after"`
	} `yaml:"expiry"`
	ChallengeTypes map[string]ChallengeType `yaml:"challenge_types" validate:"required,min=1,dive"`
}

// ChallengeType is the YAML form of domain.ChallengeConfig.
type ChallengeType struct {
	NumQuestions int      `yaml:"num_questions" validate:"gt=0"`
	TimeLimit    string   `yaml:"time_limit"`
	Topics       []string `yaml:"topics"`
	Sections     []string `yaml:"sections"`
	Hints        bool     `yaml:"hints"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Questions.CacheTTL = "10m"
	cfg.Scoring = domain.PointsPolicy{Participation: 10, WinBonus: 20}
	cfg.Expiry.Schedule = "@every 1m"
	cfg.Expiry.InviteTTL = "24h"
	cfg.Expiry.MatchmakingTTL = "10m"
	cfg.Expiry.StuckAfter = "2h"
	cfg.ChallengeTypes = map[string]ChallengeType{
		"quick":    {NumQuestions: 5, TimeLimit: "2m"},
		"standard": {NumQuestions: 10, TimeLimit: "5m"},
		"marathon": {NumQuestions: 20, TimeLimit: "15m"},
	}
	return cfg
}

// Load reads YAML config from path on top of Default. ${VAR} references in
// the file are expanded from the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks struct constraints and duration fields.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name, t := range c.ChallengeTypes {
		if t.TimeLimit == "" {
			continue
		}
		if _, err := time.ParseDuration(t.TimeLimit); err != nil {
			return fmt.Errorf("challenge type %s: time_limit: %w", name, err)
		}
	}
	return nil
}

// Types resolves the configured challenge types.
func (c Config) Types() map[string]domain.ChallengeConfig {
	out := make(map[string]domain.ChallengeConfig, len(c.ChallengeTypes))
	for name, t := range c.ChallengeTypes {
		out[name] = domain.ChallengeConfig{
			NumQuestions: t.NumQuestions,
			TimeLimit:    TTLDuration(t.TimeLimit, 0),
			Topics:       append([]string(nil), t.Topics...),
			Sections:     append([]string(nil), t.Sections...),
			Hints:        t.Hints,
		}
	}
	return out
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
