package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"trivia-sync-service/internal/client"
	"trivia-sync-service/internal/config"
	"trivia-sync-service/internal/device"
)

func newHostCmd(opts *options) *cobra.Command {
	var setID, gameID string
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run a host display: create or attach to a game and drive its rounds",
		Long: "Run a host display. Commands: start, p (pause), r (resume), s (skip), q (quit).\n" +
			"The host's countdowns end each phase; closing it leaves the game waiting.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (setID == "") == (gameID == "") {
				return errors.New("exactly one of --set or --game is required")
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
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if setID != "" {
				game, err := api.CreateGame(ctx, setID)
				if err != nil {
					return err
				}
				gameID = game.ID
				fmt.Fprintf(out, "Room code: %s (game %s)\n", game.RoomCode, game.ID)
			}

			host := device.NewHost(deviceConfig(cfg, gameID, func(sc device.Screen) {
				renderScreen(out, sc)
			}), api, api, api)

			g, ctx := errgroup.WithContext(ctx)
			ctx, stop := context.WithCancel(ctx)
			g.Go(func() error {
				if err := host.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				defer stop()
				return readCommands(ctx, cmd.InOrStdin(), func(line string) bool {
					var err error
					switch line {
					case "start":
						_, err = api.Start(ctx, gameID)
					case "p":
						err = host.Pause()
					case "r":
						err = host.Resume()
					case "s":
						err = host.Skip()
					case "players":
						var players []string
						list, lerr := api.ListPlayers(ctx, gameID)
						for _, p := range list {
							players = append(players, p.Name)
						}
						err = lerr
						fmt.Fprintf(out, "%d players: %v\n", len(players), players)
					case "q", "quit":
						return false
					case "":
					default:
						fmt.Fprintln(out, "commands: start, p, r, s, players, q")
					}
					if err != nil {
						logger.Warn("host command failed", "command", line, "error", err)
					}
					return !errors.Is(err, device.ErrSessionClosed)
				})
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&setID, "set", "", "question set for a new game")
	cmd.Flags().StringVar(&gameID, "game", "", "existing game to attach to")
	return cmd
}

func deviceConfig(cfg config.Config, gameID string, onChange func(device.Screen)) device.Config {
	return device.Config{
		GameID:    gameID,
		Durations: cfg.RoundDurations(),
		Grace:     config.Duration(cfg.Device.Grace, 0),
		PausePoll: config.Duration(cfg.Device.PausePoll, 0),
		Logger:    newLogger(os.Stderr, cfg),
		OnChange:  onChange,
	}
}
