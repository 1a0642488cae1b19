// Package device holds the host and player state machines. Each device keeps its own
// View of the game and reconciles it from relay events, local echoes and state fetches.
package device

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/ranking"
	"trivia-sync-service/internal/relay"
)

// Outcome is what Apply did with an event.
type Outcome int

const (
	// Applied changed the view.
	Applied Outcome = iota
	// Duplicate was already reflected, by an earlier copy, a local echo or a sync.
	Duplicate
	// Stale refers to a position the view has already left.
	Stale
	// Resync refers to something the view never saw; the caller must fetch state.
	Resync
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	case Resync:
		return "resync"
	}
	return "outcome(" + strconv.Itoa(int(o)) + ")"
}

// Screen is a copy of what a device renders.
type Screen struct {
	Phase         domain.Phase            `json:"phase"`
	QuestionIndex int                     `json:"questionIndex"`
	QuestionCount int                     `json:"questionCount"`
	Question      *domain.QuestionContent `json:"question,omitempty"`
	Reveal        *domain.RevealContent   `json:"reveal,omitempty"`
	Paused        bool                    `json:"paused"`
	Standings     []ranking.Standing      `json:"standings,omitempty"`
	RemainingMs   int64                   `json:"remainingMs"`
}

// View is a device's picture of one game. It is not safe for concurrent use; a Session
// owns it.
type View struct {
	phase         domain.Phase
	index         int
	questionID    string
	questionCount int
	question      *domain.QuestionContent
	reveal        *domain.RevealContent
	paused        bool
	pauseStamp    time.Time
	version       int64
	echoPending   bool

	standings    []ranking.Standing
	tracker      *ranking.Tracker
	trackedPos   int
	trackedMoves map[string]ranking.Standing

	events    map[string]struct{}
	handled   map[string]struct{}
	questions map[string]int
}

func NewView() *View {
	return &View{
		index:      -1,
		tracker:    ranking.NewTracker(),
		trackedPos: -1,
		events:     make(map[string]struct{}),
		handled:    make(map[string]struct{}),
		questions:  make(map[string]int),
	}
}

func (v *View) Screen() Screen {
	s := Screen{
		Phase:         v.phase,
		QuestionIndex: v.index,
		QuestionCount: v.questionCount,
		Paused:        v.paused,
		Standings:     append([]ranking.Standing(nil), v.standings...),
	}
	if v.question != nil {
		q := *v.question
		s.Question = &q
	}
	if v.reveal != nil {
		r := *v.reveal
		s.Reveal = &r
	}
	return s
}

func (v *View) Phase() domain.Phase { return v.phase }
func (v *View) Index() int          { return v.index }
func (v *View) Paused() bool        { return v.paused }

// QuestionID is the id of the current question, empty before the first one.
func (v *View) QuestionID() string { return v.questionID }

// Apply folds one relay event into the view.
func (v *View) Apply(ev relay.Event) (Outcome, error) {
	if ev.ID != "" {
		if _, seen := v.events[ev.ID]; seen {
			return Duplicate, nil
		}
		v.events[ev.ID] = struct{}{}
	}
	if v.phase == domain.PhaseResults {
		if ev.Name == domain.EventGameEnd {
			return Duplicate, nil
		}
		return Stale, nil
	}

	switch ev.Name {
	case domain.EventQuestionAdvance:
		var p domain.QuestionAdvance
		if err := ev.Decode(&p); err != nil {
			return Stale, err
		}
		return v.applyAdvance(p), nil
	case domain.EventAnswerReveal:
		var p domain.AnswerReveal
		if err := ev.Decode(&p); err != nil {
			return Stale, err
		}
		return v.applyReveal(p), nil
	case domain.EventLeaderboardReady:
		var p domain.LeaderboardReady
		if err := ev.Decode(&p); err != nil {
			return Stale, err
		}
		return v.applyLeaderboard(p), nil
	case domain.EventGameEnd:
		if !v.mark("end") {
			return Duplicate, nil
		}
		v.enter(domain.PhaseResults)
		return Applied, nil
	case domain.EventGamePause:
		var p domain.GamePause
		if err := ev.Decode(&p); err != nil {
			return Stale, err
		}
		return v.applyPause(true, p.PausedAt), nil
	case domain.EventGameResume:
		var p domain.GameResume
		if err := ev.Decode(&p); err != nil {
			return Stale, err
		}
		return v.applyPause(false, p.ResumedAt), nil
	case domain.EventScoresUpdated:
		var p domain.ScoresUpdated
		if err := ev.Decode(&p); err != nil {
			return Stale, err
		}
		if _, known := v.questions[p.QuestionID]; !known {
			return Resync, nil
		}
		return Applied, nil
	case domain.EventPlayerJoined, domain.EventPlayerUpdated, domain.EventPlayerRemoved:
		return Applied, nil
	}
	return Stale, fmt.Errorf("unknown event %q", ev.Name)
}

func (v *View) applyAdvance(p domain.QuestionAdvance) Outcome {
	idx := p.QuestionNumber - 1
	v.questions[p.QuestionID] = idx
	key := "advance:" + strconv.Itoa(idx)
	if _, done := v.handled[key]; done {
		// an echo may have moved here without the content
		if idx == v.index && v.question == nil {
			content := p.Content
			v.question = &content
			v.questionID = p.QuestionID
		}
		return Duplicate
	}
	if position(domain.PhaseQuestion, idx) < position(v.phase, v.index) {
		return Stale
	}
	v.mark(key)
	v.index = idx
	v.questionID = p.QuestionID
	content := p.Content
	v.question = &content
	v.reveal = nil
	v.enter(domain.PhaseQuestion)
	if !p.StartedAt.IsZero() {
		v.pauseStamp = p.StartedAt
	}
	return Applied
}

func (v *View) applyReveal(p domain.AnswerReveal) Outcome {
	idx, known := v.questions[p.QuestionID]
	if !known {
		return Resync
	}
	key := "reveal:" + p.QuestionID
	if _, done := v.handled[key]; done {
		if idx == v.index && v.reveal == nil {
			content := p.Content
			v.reveal = &content
		}
		return Duplicate
	}
	if position(domain.PhaseReveal, idx) <= position(v.phase, v.index) {
		return Stale
	}
	v.mark(key)
	v.index = idx
	content := p.Content
	v.reveal = &content
	v.enter(domain.PhaseReveal)
	return Applied
}

func (v *View) applyLeaderboard(p domain.LeaderboardReady) Outcome {
	idx, known := v.questions[p.QuestionID]
	if !known {
		return Resync
	}
	if !v.mark("leaderboard:" + p.QuestionID) {
		return Duplicate
	}
	if position(domain.PhaseLeaderboard, idx) <= position(v.phase, v.index) {
		return Stale
	}
	v.index = idx
	v.enter(domain.PhaseLeaderboard)
	return Applied
}

func (v *View) applyPause(paused bool, at time.Time) Outcome {
	if v.phase == domain.PhaseNone {
		return Stale
	}
	if !at.IsZero() {
		if at.Before(v.pauseStamp) {
			return Stale
		}
		v.pauseStamp = at
	}
	if v.paused == paused {
		return Duplicate
	}
	v.paused = paused
	return Applied
}

// Sync adopts an authoritative snapshot. Snapshots older than what the view already
// shows are refused unless a local echo is waiting for confirmation.
func (v *View) Sync(state domain.GameState) bool {
	g := state.Game
	if g.Version < v.version {
		return false
	}
	phase, idx := g.Phase, g.CurrentQuestionIndex
	switch g.Status {
	case domain.StatusWaiting:
		phase, idx = domain.PhaseNone, -1
	case domain.StatusCompleted:
		phase = domain.PhaseResults
	}
	if !v.echoPending && position(phase, idx) < position(v.phase, v.index) {
		return false
	}
	v.echoPending = false
	v.version = g.Version
	v.questionCount = g.QuestionCount

	moved := phase != v.phase || idx != v.index
	v.index = idx
	v.phase = phase
	v.paused = g.Paused()
	if g.PausedAt != nil && g.PausedAt.After(v.pauseStamp) {
		v.pauseStamp = *g.PausedAt
	}
	if state.Question != nil {
		q := *state.Question
		v.question = &q
		v.questionID = q.QuestionID
		v.questions[q.QuestionID] = idx
	} else if moved {
		v.question = nil
	}
	if state.Reveal != nil {
		r := *state.Reveal
		v.reveal = &r
	} else if moved {
		v.reveal = nil
	}
	v.markThrough()
	v.SetStandings(state.Standings)
	return true
}

// Echo applies the host's own expiry of the current phase before the server confirms it.
// The confirming broadcast is then discarded as a duplicate.
func (v *View) Echo() bool {
	switch v.phase {
	case domain.PhaseQuestion:
		v.mark("reveal:" + v.questionID)
		v.reveal = nil
		v.enter(domain.PhaseReveal)
	case domain.PhaseReveal:
		if v.questionCount > 0 && v.index >= v.questionCount-1 {
			v.mark("end")
			v.enter(domain.PhaseResults)
		} else {
			v.mark("leaderboard:" + v.questionID)
			v.enter(domain.PhaseLeaderboard)
		}
	case domain.PhaseLeaderboard:
		if v.questionCount > 0 && v.index >= v.questionCount-1 {
			v.mark("end")
			v.enter(domain.PhaseResults)
			break
		}
		v.index++
		v.mark("advance:" + strconv.Itoa(v.index))
		v.question, v.reveal, v.questionID = nil, nil, ""
		v.enter(domain.PhaseQuestion)
	default:
		return false
	}
	v.echoPending = true
	return true
}

// EchoPause flips the pause flag locally ahead of the server.
func (v *View) EchoPause(paused bool) bool {
	if v.phase == domain.PhaseNone || v.phase == domain.PhaseResults || v.paused == paused {
		return false
	}
	v.paused = paused
	v.echoPending = true
	return true
}

// SetStandings stores fresh standings. Rank changes are computed once per leaderboard
// screen, against the previous leaderboard screen.
func (v *View) SetStandings(standings []ranking.Standing) {
	if standings == nil {
		return
	}
	showing := v.phase == domain.PhaseLeaderboard || v.phase == domain.PhaseResults
	pos := position(v.phase, v.index)
	switch {
	case showing && pos != v.trackedPos:
		v.standings = v.tracker.Update(standings)
		v.trackedPos = pos
		v.trackedMoves = make(map[string]ranking.Standing, len(v.standings))
		for _, s := range v.standings {
			v.trackedMoves[s.PlayerID] = s
		}
	case showing:
		// a later refresh of the same screen keeps the arrows already shown
		out := make([]ranking.Standing, len(standings))
		for i, s := range standings {
			if prev, ok := v.trackedMoves[s.PlayerID]; ok {
				s.Change, s.Delta = prev.Change, prev.Delta
			}
			out[i] = s
		}
		v.standings = out
	default:
		v.standings = append([]ranking.Standing(nil), standings...)
	}
}

func (v *View) enter(phase domain.Phase) {
	v.phase = phase
	v.paused = false
}

// mark records a semantic guard key and reports whether it was new.
func (v *View) mark(key string) bool {
	if _, done := v.handled[key]; done {
		return false
	}
	v.handled[key] = struct{}{}
	return true
}

// markThrough guards every transition up to the current position so late broadcasts of
// them are discarded.
func (v *View) markThrough() {
	if v.index < 0 {
		return
	}
	v.mark("advance:" + strconv.Itoa(v.index))
	if v.questionID == "" {
		return
	}
	switch v.phase {
	case domain.PhaseReveal:
		v.mark("reveal:" + v.questionID)
	case domain.PhaseLeaderboard:
		v.mark("reveal:" + v.questionID)
		v.mark("leaderboard:" + v.questionID)
	case domain.PhaseResults:
		v.mark("reveal:" + v.questionID)
		v.mark("end")
	}
}

// position orders (phase, index) pairs along the game timeline.
func position(phase domain.Phase, index int) int {
	switch phase {
	case domain.PhaseQuestion:
		return index * 3
	case domain.PhaseReveal:
		return index*3 + 1
	case domain.PhaseLeaderboard:
		return index*3 + 2
	case domain.PhaseResults:
		return math.MaxInt
	}
	return -1
}
