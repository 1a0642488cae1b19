package cli

import (
	"errors"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"trivia-sync-service/internal/infra/memory"
	infraredis "trivia-sync-service/internal/infra/redis"
	"trivia-sync-service/internal/infra/sqlstore"
)

func newSeedCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load question sets from a YAML file into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database url not configured")
			}
			if file == "" {
				file = cfg.Questions.File
			}
			if file == "" {
				return errors.New("no question file given")
			}
			logger := newLogger(os.Stderr, cfg)

			sets, err := memory.LoadQuestionFile(file)
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			var cache *infraredis.QuestionRepository
			if cfg.Redis.Addr != "" {
				client := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
				defer client.Close()
				cache = infraredis.NewQuestionRepository(client, nil, 0, logger)
			}

			questions := sqlstore.NewQuestionStore(db)
			for _, set := range sets {
				if err := questions.SaveQuestionSet(cmd.Context(), set); err != nil {
					return err
				}
				if cache != nil {
					if err := cache.Invalidate(cmd.Context(), set.ID); err != nil {
						logger.Warn("drop cached question set failed", "set_id", set.ID, "error", err)
					}
				}
				logger.Info("question set saved", "set_id", set.ID, "questions", len(set.Questions))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML question file (defaults to questions.file)")
	return cmd
}
