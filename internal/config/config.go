package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"trivia-sync-service/internal/domain"
)

// Relay backends.
const (
	RelayMemory = "memory"
	RelayRedis  = "redis"
	RelayAMQP   = "amqp"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	// Database.URL selects the store: postgres://..., sqlite://path, or empty for in-memory.
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	AMQP struct {
		URL string `yaml:"url"`
	} `yaml:"amqp"`
	Relay struct {
		Backend string `yaml:"backend"`
		Buffer  int    `yaml:"buffer"`
	} `yaml:"relay"`
	Questions struct {
		TTL  string `yaml:"ttl"`
		File string `yaml:"file"`
	} `yaml:"questions"`
	Round struct {
		Question    string `yaml:"question"`
		Reveal      string `yaml:"reveal"`
		Leaderboard string `yaml:"leaderboard"`
	} `yaml:"round"`
	Device struct {
		Grace     string `yaml:"grace"`
		PausePoll string `yaml:"pausePoll"`
	} `yaml:"device"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default is the configuration used when no file is present: in-memory store and relay.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Relay.Backend = RelayMemory
	cfg.Relay.Buffer = 64
	cfg.Questions.TTL = "10m"
	cfg.Round.Question = "15s"
	cfg.Round.Reveal = "5s"
	cfg.Round.Leaderboard = "10s"
	cfg.Device.Grace = "3s"
	cfg.Device.PausePoll = "10s"
	cfg.Log.Level = "info"
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file is not an error when
// allowMissing is set.
func Load(path string, allowMissing bool) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	switch c.Relay.Backend {
	case RelayMemory:
	case RelayRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("relay.backend redis needs redis.addr"))
		}
	case RelayAMQP:
		if c.AMQP.URL == "" {
			errs = append(errs, errors.New("relay.backend amqp needs amqp.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("relay.backend must be memory, redis or amqp, got %q", c.Relay.Backend))
	}
	if u := c.Database.URL; u != "" && !strings.HasPrefix(u, "postgres://") &&
		!strings.HasPrefix(u, "postgresql://") && !strings.HasPrefix(u, "sqlite://") && !strings.HasPrefix(u, "file:") {
		errs = append(errs, fmt.Errorf("database.url scheme not supported: %q", u))
	}

	for name, raw := range map[string]string{
		"questions.ttl":     c.Questions.TTL,
		"round.question":    c.Round.Question,
		"round.reveal":      c.Round.Reveal,
		"round.leaderboard": c.Round.Leaderboard,
		"device.grace":      c.Device.Grace,
		"device.pausePoll":  c.Device.PausePoll,
	} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", name, raw))
		}
	}
	if d := Duration(c.Round.Question, 0); d > domain.MaxResponseTime {
		errs = append(errs, fmt.Errorf("round.question must not exceed %s", domain.MaxResponseTime))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RoundDurations converts the round section, falling back to the defaults per phase.
func (c Config) RoundDurations() domain.RoundDurations {
	def := domain.DefaultRoundDurations()
	return domain.RoundDurations{
		Question:    Duration(c.Round.Question, def.Question),
		Reveal:      Duration(c.Round.Reveal, def.Reveal),
		Leaderboard: Duration(c.Round.Leaderboard, def.Leaderboard),
	}
}

func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	raw := c.Log.Level
	if raw == "" {
		raw = "info"
	}
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
