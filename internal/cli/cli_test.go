package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"trivia-sync-service/internal/config"
	"trivia-sync-service/internal/device"
	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/ranking"
)

func TestLoadConfigAppliesFlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"7000\"\nlog:\n  level: warn\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	opts := &options{configPath: path, port: "9000", redisAddr: "localhost:6379", relay: config.RelayRedis}
	cfg, err := opts.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Fatalf("expected flag port to win, got %q", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("expected file log level, got %q", cfg.Log.Level)
	}
	if cfg.Relay.Backend != config.RelayRedis || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected relay settings: %+v", cfg.Relay)
	}
}

func TestLoadConfigRejectsIncompleteRelay(t *testing.T) {
	opts := &options{configPath: filepath.Join(t.TempDir(), "missing.yaml"), relay: config.RelayAMQP}
	if _, err := opts.loadConfig(); err == nil {
		t.Fatalf("expected error for explicit missing config file")
	}

	opts = &options{configPath: defaultConfigPath, relay: config.RelayAMQP}
	_, err := opts.loadConfig()
	if err == nil || !strings.Contains(err.Error(), "amqp.url") {
		t.Fatalf("expected amqp.url validation error, got %v", err)
	}
}

func TestBindEnvFillsUnsetFlags(t *testing.T) {
	t.Setenv("TRIVIA_PORT", "9191")

	v := viper.New()
	v.SetEnvPrefix("TRIVIA")
	v.AutomaticEnv()

	var port, relay string
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringVar(&port, "port", "", "")
	fs.StringVar(&relay, "relay", "", "")
	if err := fs.Parse([]string{"--relay", "memory"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	bindEnv(v, fs)
	if port != "9191" {
		t.Fatalf("expected port from env, got %q", port)
	}
	if relay != "memory" {
		t.Fatalf("explicit flag must not be replaced, got %q", relay)
	}
}

func TestRenderScreen(t *testing.T) {
	var buf bytes.Buffer
	renderScreen(&buf, device.Screen{
		Phase:         domain.PhaseQuestion,
		QuestionIndex: 1,
		QuestionCount: 4,
		Paused:        true,
		Question: &domain.QuestionContent{
			QuestionID: "q2",
			Prompt:     "Who built the ark?",
			Options: map[domain.Option]string{
				domain.OptionA: "Noah", domain.OptionB: "Moses", domain.OptionC: "David", domain.OptionD: "Paul",
			},
		},
	})
	out := buf.String()
	if !strings.Contains(out, "Question 2/4 (paused): Who built the ark?") {
		t.Fatalf("unexpected question header: %q", out)
	}
	if !strings.Contains(out, "A) Noah") || !strings.Contains(out, "D) Paul") {
		t.Fatalf("options missing: %q", out)
	}

	buf.Reset()
	renderScreen(&buf, device.Screen{
		Phase: domain.PhaseResults,
		Standings: []ranking.Standing{
			{Entry: ranking.Entry{PlayerID: "p1", Name: "Alice", TotalScore: 30}, Rank: 1},
		},
	})
	if !strings.Contains(buf.String(), "Final results") || !strings.Contains(buf.String(), "Alice") {
		t.Fatalf("unexpected results screen: %q", buf.String())
	}
}

func TestReadCommandsStopsWhenHandlerDeclines(t *testing.T) {
	var seen []string
	err := readCommands(context.Background(), strings.NewReader("start\n p \nq\nnever\n"), func(line string) bool {
		seen = append(seen, line)
		return line != "q"
	})
	if err != nil {
		t.Fatalf("readCommands: %v", err)
	}
	if strings.Join(seen, ",") != "start,p,q" {
		t.Fatalf("unexpected commands: %v", seen)
	}
}
