package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"trivia-sync-service/internal/client"
	"trivia-sync-service/internal/device"
	"trivia-sync-service/internal/domain"
)

func newPlayCmd(opts *options) *cobra.Command {
	var roomCode, name string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a game by room code and answer from the terminal",
		Long:  "Join a game as a player. Type A, B, C or D to answer, q to quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomCode == "" || name == "" {
				return errors.New("--room and --name are required")
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, cfg)
			api, err := client.New(opts.serverURL, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			game, me, err := api.JoinGame(cmd.Context(), roomCode, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Joined as %s\n", me.Name)

			player := device.NewPlayer(deviceConfig(cfg, game.ID, func(sc device.Screen) {
				renderScreen(out, sc)
			}), me.ID, api, api, api)

			g, ctx := errgroup.WithContext(cmd.Context())
			ctx, stop := context.WithCancel(ctx)
			g.Go(func() error {
				if err := player.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				defer stop()
				return readCommands(ctx, cmd.InOrStdin(), func(line string) bool {
					if line == "q" || line == "quit" {
						return false
					}
					if line == "" {
						return true
					}
					opt, err := domain.ParseOption(line)
					if err != nil {
						fmt.Fprintln(out, "answer with A, B, C or D")
						return true
					}
					answer, err := player.Answer(ctx, opt)
					switch {
					case err == nil:
						fmt.Fprintf(out, "Locked in %s after %.1fs\n", opt, float64(answer.ResponseTimeMs)/1000)
					case errors.Is(err, device.ErrNoOpenQuestion):
						fmt.Fprintln(out, "no question is open")
					case errors.Is(err, device.ErrAlreadyAnswered), errors.Is(err, domain.ErrDuplicateSubmission):
						fmt.Fprintln(out, "already answered")
					case errors.Is(err, device.ErrSessionClosed):
						return false
					default:
						fmt.Fprintf(out, "answer not recorded: %v\n", err)
					}
					return true
				})
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&roomCode, "room", "", "room code shown on the host")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}
