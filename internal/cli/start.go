package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"trivia-sync-service/internal/app"
	transport "trivia-sync-service/internal/transport/http"
)

const defaultQuestionTTL = 10 * time.Minute

func newStartCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}
}

func runServer(ctx context.Context, opts *options) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg)

	b, err := buildBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	service := app.NewService(app.Deps{
		Store:     b.store,
		Questions: b.questions,
		Publisher: b.relay,
		Logger:    logger,
		Durations: cfg.RoundDurations(),
	})
	handler := transport.NewHandler(service, b.relay, b.pinger, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting trivia service", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
