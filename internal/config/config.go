package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"PORT"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
		TTL      string `yaml:"ttl" env:"REDIS_TTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"POSTGRES_URL"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri" env:"MONGO_URI"`
		Database string `yaml:"database" env:"MONGO_DATABASE"`
	} `yaml:"mongo"`
	Quiz struct {
		TTL string `yaml:"ttl" env:"QUIZ_CACHE_TTL"`
	} `yaml:"quiz"`
	Matchmaking struct {
		MaxWait       string `yaml:"max_wait" env:"MATCHMAKING_MAX_WAIT"`
		PollInterval  string `yaml:"poll_interval" env:"MATCHMAKING_POLL_INTERVAL"`
		SweepInterval string `yaml:"sweep_interval" env:"MATCHMAKING_SWEEP_INTERVAL"`
	} `yaml:"matchmaking"`
	Match struct {
		TargetPlayers     int    `yaml:"target_players" env:"MATCH_TARGET_PLAYERS"`
		TotalQuestions    int    `yaml:"total_questions" env:"MATCH_TOTAL_QUESTIONS"`
		QuestionTimeLimit string `yaml:"question_time_limit" env:"MATCH_QUESTION_TIME_LIMIT"`
		AdvanceGrace      string `yaml:"advance_grace" env:"MATCH_ADVANCE_GRACE"`
		MaxMissedRounds   int    `yaml:"max_missed_rounds" env:"MATCH_MAX_MISSED_ROUNDS"`
		ReapAfter         string `yaml:"reap_after" env:"MATCH_REAP_AFTER"`
	} `yaml:"match"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Redis.TTL = "24h"
	cfg.Mongo.Database = "nurseconnect"
	cfg.Quiz.TTL = "10m"
	cfg.Matchmaking.MaxWait = "60s"
	cfg.Matchmaking.PollInterval = "500ms"
	cfg.Matchmaking.SweepInterval = "30s"
	cfg.Match.TargetPlayers = 2
	cfg.Match.TotalQuestions = 10
	cfg.Match.QuestionTimeLimit = "30s"
	cfg.Match.AdvanceGrace = "15s"
	cfg.Match.MaxMissedRounds = 3
	cfg.Match.ReapAfter = "5m"
	return cfg
}

// Load reads YAML config from path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Match.TargetPlayers < 1 {
		errs = append(errs, fmt.Errorf("match.target_players must be at least 1, got %d", c.Match.TargetPlayers))
	}
	if c.Match.TotalQuestions < 1 {
		errs = append(errs, fmt.Errorf("match.total_questions must be at least 1, got %d", c.Match.TotalQuestions))
	}
	if c.Match.MaxMissedRounds < 0 {
		errs = append(errs, fmt.Errorf("match.max_missed_rounds must not be negative"))
	}
	durations := map[string]string{
		"redis.ttl":                  c.Redis.TTL,
		"quiz.ttl":                   c.Quiz.TTL,
		"matchmaking.max_wait":       c.Matchmaking.MaxWait,
		"matchmaking.poll_interval":  c.Matchmaking.PollInterval,
		"matchmaking.sweep_interval": c.Matchmaking.SweepInterval,
		"match.question_time_limit":  c.Match.QuestionTimeLimit,
		"match.advance_grace":        c.Match.AdvanceGrace,
		"match.reap_after":           c.Match.ReapAfter,
	}
	for name, raw := range durations {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", name, raw))
		}
	}
	if c.Mongo.URI != "" && c.Mongo.Database == "" {
		errs = append(errs, errors.New("mongo.database is required with mongo.uri"))
	}
	return errors.Join(errs...)
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
