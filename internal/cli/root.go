package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"trivia-sync-service/internal/config"
)

const defaultConfigPath = "config/config.yaml"

// options are the flags shared by every command. Each can also be set as TRIVIA_<FLAG>.
type options struct {
	configPath  string
	logLevel    string
	port        string
	databaseURL string
	relay       string
	redisAddr   string
	amqpURL     string
	serverURL   string
}

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	v := viper.New()
	v.SetEnvPrefix("TRIVIA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "trivia",
		Short:         "Real-time multi-device trivia service",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			bindEnv(v, cmd.Flags())
			return nil
		},
	}

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVar(&opts.configPath, "config", defaultConfigPath, "path to YAML config (env: TRIVIA_CONFIG)")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (env: TRIVIA_LOG_LEVEL)")
	fs.StringVar(&opts.port, "port", "", "port to listen on (env: TRIVIA_PORT)")
	fs.StringVar(&opts.databaseURL, "database-url", "", "postgres:// or sqlite:// URL; empty keeps everything in memory (env: TRIVIA_DATABASE_URL)")
	fs.StringVar(&opts.relay, "relay", "", "relay backend: memory, redis or amqp (env: TRIVIA_RELAY)")
	fs.StringVar(&opts.redisAddr, "redis-addr", "", "redis address for the question cache and relay (env: TRIVIA_REDIS_ADDR)")
	fs.StringVar(&opts.amqpURL, "amqp-url", "", "rabbitmq URL for the amqp relay (env: TRIVIA_AMQP_URL)")
	fs.StringVar(&opts.serverURL, "server", "http://localhost:8080", "service URL used by host and play (env: TRIVIA_SERVER)")

	cmd.AddCommand(newStartCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	cmd.AddCommand(newHostCmd(opts))
	cmd.AddCommand(newPlayCmd(opts))
	cmd.CompletionOptions.HiddenDefaultCmd = true
	return cmd
}

// bindEnv fills every flag the user did not set from its TRIVIA_ variable.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

// loadConfig reads the YAML file and applies flag overrides on top.
func (o *options) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath, o.configPath == defaultConfigPath)
	if err != nil {
		return cfg, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.port != "" {
		cfg.Server.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.Database.URL = o.databaseURL
	}
	if o.relay != "" {
		cfg.Relay.Backend = o.relay
	}
	if o.redisAddr != "" {
		cfg.Redis.Addr = o.redisAddr
	}
	if o.amqpURL != "" {
		cfg.AMQP.URL = o.amqpURL
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	level, _ := cfg.LogLevel()
	return slog.New(tint.NewHandler(w, &tint.Options{Level: level, AddSource: level == slog.LevelDebug}))
}
