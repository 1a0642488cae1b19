package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"trivia-sync-service/internal/app"
	"trivia-sync-service/internal/config"
	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/infra/amqp"
	"trivia-sync-service/internal/infra/memory"
	"trivia-sync-service/internal/infra/postgres"
	infraredis "trivia-sync-service/internal/infra/redis"
	"trivia-sync-service/internal/infra/sqlstore"
	"trivia-sync-service/internal/infra/sqlstore/migrations"
	"trivia-sync-service/internal/relay"
	transport "trivia-sync-service/internal/transport/http"
)

// backend is everything the server needs, plus the cleanup to release it.
type backend struct {
	store     app.Store
	questions app.QuestionRepository
	relay     relay.Relay
	pinger    transport.Pinger
	closers   []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func isPostgres(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// openDatabase opens the configured database and applies pending migrations.
func openDatabase(ctx context.Context, cfg config.Config, logger *slog.Logger) (*bun.DB, error) {
	db, err := sqlstore.Open(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	applied, err := migrations.Up(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "migrations", applied)
	}
	return db, nil
}

func buildBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	var loader memory.QuestionLoader
	if cfg.Database.URL == "" {
		sets, err := fileQuestionSets(cfg)
		if err != nil {
			return nil, err
		}
		b.store = memory.NewStore()
		loader = memory.NewStaticQuestionLoader(sets...)
		logger.Warn("no database configured, games live in memory", "question_sets", len(sets))
	} else {
		db, err := openDatabase(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { db.Close() })
		store := sqlstore.NewStore(db)
		b.store, b.pinger = store, store
		loader = sqlstore.NewQuestionStore(db)

		if isPostgres(cfg.Database.URL) {
			pool, err := postgres.Connect(ctx, cfg.Database.URL)
			if err != nil {
				return nil, err
			}
			b.closers = append(b.closers, pool.Close)
			loader = postgres.NewQuestionLoader(pool)
		}
	}

	var client *goredis.Client
	if cfg.Redis.Addr != "" {
		client = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	ttl := config.Duration(cfg.Questions.TTL, defaultQuestionTTL)
	if client != nil {
		b.questions = infraredis.NewQuestionRepository(client, loader, ttl, logger)
	} else {
		b.questions = memory.NewQuestionRepository(loader, ttl)
	}

	switch cfg.Relay.Backend {
	case config.RelayRedis:
		b.relay = infraredis.NewRelay(client, cfg.Relay.Buffer, logger)
	case config.RelayAMQP:
		r, err := amqp.Dial(cfg.AMQP.URL, cfg.Relay.Buffer, logger)
		if err != nil {
			return nil, err
		}
		b.relay = r
	default:
		b.relay = relay.NewHub(cfg.Relay.Buffer)
	}
	b.closers = append(b.closers, func() { b.relay.Close() })

	logger.Info("backend ready",
		"database", databaseKind(cfg.Database.URL),
		"relay", cfg.Relay.Backend,
		"question_cache", map[bool]string{true: "redis", false: "memory"}[client != nil])
	ok = true
	return b, nil
}

func fileQuestionSets(cfg config.Config) ([]domain.QuestionSet, error) {
	if cfg.Questions.File == "" {
		return nil, nil
	}
	return memory.LoadQuestionFile(cfg.Questions.File)
}

func databaseKind(url string) string {
	switch {
	case url == "":
		return "memory"
	case isPostgres(url):
		return "postgres"
	default:
		return "sqlite"
	}
}
