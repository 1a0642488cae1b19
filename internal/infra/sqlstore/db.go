// Package sqlstore persists games, rosters, question sets and the answer ledger through bun.
// Postgres is the production database; SQLite serves single-node setups and tests.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"trivia-sync-service/internal/domain"
)

// Open connects to dsn. postgres:// URLs use pgdriver; anything else is a SQLite path,
// optionally prefixed with sqlite://.
func Open(dsn string) (*bun.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url not configured")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		return bun.NewDB(sqldb, pgdialect.New()), nil
	}

	sqldb, err := sql.Open("sqlite3", strings.TrimPrefix(dsn, "sqlite://"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps in-memory databases alive.
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// CreateSchema creates every table and index if missing.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range []any{
		(*questionSetRow)(nil),
		(*questionRow)(nil),
		(*gameRow)(nil),
		(*playerRow)(nil),
		(*answerRow)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table %T: %w", model, err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*questionRow)(nil), "questions_set_order_idx", []string{"question_set_id", "order_index"}},
		{(*playerRow)(nil), "game_players_game_idx", []string{"game_id"}},
		{(*answerRow)(nil), "player_answers_game_question_idx", []string{"game_id", "question_id"}},
	}
	for _, idx := range indexes {
		_, err := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists().Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// DropSchema removes every table.
func DropSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range []any{
		(*answerRow)(nil),
		(*playerRow)(nil),
		(*gameRow)(nil),
		(*questionRow)(nil),
		(*questionSetRow)(nil),
	} {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table %T: %w", model, err)
		}
	}
	return nil
}

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrTransientPersistence, err)
}

func notFound(err error, missing error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return missing
	}
	return transient(op, err)
}
