package app

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/relay"
)

// Deps are the collaborators shared by the use cases.
type Deps struct {
	Store     Store
	Questions QuestionRepository
	Publisher relay.Publisher
	Logger    *slog.Logger
	Durations domain.RoundDurations
	// Now and NewID are overridable for deterministic tests.
	Now   func() time.Time
	NewID func() string
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Durations == (domain.RoundDurations{}) {
		d.Durations = domain.DefaultRoundDurations()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

func (d Deps) notifier() notifier {
	return notifier{pub: d.Publisher, logger: d.Logger}
}
