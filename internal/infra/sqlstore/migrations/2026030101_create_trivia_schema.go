package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"trivia-sync-service/internal/infra/sqlstore"
)

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return sqlstore.CreateSchema(ctx, db)
		},
		func(ctx context.Context, db *bun.DB) error {
			return sqlstore.DropSchema(ctx, db)
		},
	)
}
