package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"trivia-sync-service/internal/device"
	"trivia-sync-service/internal/domain"
)

// lines feeds input lines to a channel. The reader goroutine is abandoned on exit since a
// blocked terminal read cannot be interrupted.
func lines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			out <- strings.TrimSpace(scanner.Text())
		}
	}()
	return out
}

// readCommands calls handle for every line until input ends, handle returns false or ctx
// is done.
func readCommands(ctx context.Context, r io.Reader, handle func(string) bool) error {
	in := lines(r)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-in:
			if !ok || !handle(line) {
				return nil
			}
		}
	}
}

func renderScreen(w io.Writer, sc device.Screen) {
	status := ""
	if sc.Paused {
		status = " (paused)"
	}
	switch sc.Phase {
	case domain.PhaseNone:
		fmt.Fprintf(w, "waiting for the host to start%s\n", status)
	case domain.PhaseQuestion:
		if sc.Question == nil {
			return
		}
		fmt.Fprintf(w, "\nQuestion %d/%d%s: %s\n", sc.QuestionIndex+1, sc.QuestionCount, status, sc.Question.Prompt)
		for _, o := range domain.Options {
			fmt.Fprintf(w, "  %s) %s\n", o, sc.Question.Options[o])
		}
	case domain.PhaseReveal:
		if sc.Reveal != nil {
			fmt.Fprintf(w, "Answer%s: %s) %s\n", status, sc.Reveal.CorrectAnswer, sc.Reveal.CorrectText)
			if sc.Reveal.Verse.Reference != "" {
				fmt.Fprintf(w, "  %s %s\n", sc.Reveal.Verse.Reference, sc.Reveal.Verse.Text)
			}
		}
	case domain.PhaseLeaderboard, domain.PhaseResults:
		title := "Leaderboard"
		if sc.Phase == domain.PhaseResults {
			title = "Final results"
		}
		fmt.Fprintf(w, "%s%s\n", title, status)
		for _, s := range sc.Standings {
			fmt.Fprintf(w, "  %d. %-20s %4d %s\n", s.Rank, s.Name, s.TotalScore, s.Change)
		}
	}
}
