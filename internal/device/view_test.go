package device

import (
	"encoding/json"
	"testing"
	"time"

	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/ranking"
	"trivia-sync-service/internal/relay"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func event(t *testing.T, id string, name domain.EventName, payload any) relay.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return relay.Event{ID: id, Channel: "game:g1", Name: name, Payload: raw, SentAt: t0}
}

func advanceEvent(t *testing.T, id string, index int) relay.Event {
	qid := questionID(index)
	return event(t, id, domain.EventQuestionAdvance, domain.QuestionAdvance{
		QuestionNumber: index + 1,
		QuestionID:     qid,
		Content:        domain.QuestionContent{QuestionID: qid, Number: index + 1, Prompt: "prompt " + qid},
		TimerDuration:  15000,
		StartedAt:      t0.Add(time.Duration(index) * time.Minute),
	})
}

func revealEvent(t *testing.T, id string, index int) relay.Event {
	return event(t, id, domain.EventAnswerReveal, domain.AnswerReveal{
		QuestionID:    questionID(index),
		CorrectAnswer: domain.OptionA,
		Content:       domain.RevealContent{CorrectAnswer: domain.OptionA, CorrectText: "yes"},
	})
}

func questionID(index int) string {
	return "q" + string(rune('1'+index))
}

func mustApply(t *testing.T, v *View, ev relay.Event, want Outcome) {
	t.Helper()
	got, err := v.Apply(ev)
	if err != nil {
		t.Fatalf("apply %s: %v", ev.Name, err)
	}
	if got != want {
		t.Fatalf("apply %s (%s): expected %s, got %s", ev.Name, ev.ID, want, got)
	}
}

func TestViewDiscardsRepeatedEvent(t *testing.T) {
	v := NewView()
	ev := advanceEvent(t, "e1", 0)
	mustApply(t, v, ev, Applied)
	mustApply(t, v, ev, Duplicate)

	// same transition re-sent under a new id is caught by the semantic guard
	mustApply(t, v, advanceEvent(t, "e2", 0), Duplicate)
	if v.Phase() != domain.PhaseQuestion || v.Index() != 0 {
		t.Fatalf("unexpected view %s/%d", v.Phase(), v.Index())
	}
}

func TestViewIgnoresOutOfOrderEvents(t *testing.T) {
	v := NewView()
	mustApply(t, v, advanceEvent(t, "e1", 0), Applied)
	mustApply(t, v, advanceEvent(t, "e3", 1), Applied)
	mustApply(t, v, revealEvent(t, "e2", 0), Stale)
	mustApply(t, v, event(t, "e4", domain.EventLeaderboardReady, domain.LeaderboardReady{QuestionID: "q1"}), Stale)

	if v.Phase() != domain.PhaseQuestion || v.QuestionID() != "q2" {
		t.Fatalf("late events must not move the view back: %s/%s", v.Phase(), v.QuestionID())
	}
}

func TestViewAsksForResyncOnUnknownQuestion(t *testing.T) {
	v := NewView()
	mustApply(t, v, revealEvent(t, "e1", 2), Resync)
	mustApply(t, v, event(t, "e2", domain.EventScoresUpdated, domain.ScoresUpdated{QuestionID: "q3"}), Resync)
}

func TestViewSyncGuardsLateBroadcasts(t *testing.T) {
	v := NewView()
	reveal := domain.RevealContent{CorrectAnswer: domain.OptionB}
	ok := v.Sync(domain.GameState{
		Game: domain.Game{
			ID: "g1", Status: domain.StatusActive, Phase: domain.PhaseReveal,
			CurrentQuestionIndex: 1, QuestionCount: 3, Version: 4,
		},
		Question: &domain.QuestionContent{QuestionID: "q2", Number: 2},
		Reveal:   &reveal,
	})
	if !ok {
		t.Fatalf("sync refused")
	}

	mustApply(t, v, advanceEvent(t, "e1", 1), Duplicate)
	mustApply(t, v, revealEvent(t, "e2", 1), Duplicate)
	mustApply(t, v, event(t, "e3", domain.EventLeaderboardReady, domain.LeaderboardReady{QuestionID: "q2"}), Applied)
	if v.Phase() != domain.PhaseLeaderboard {
		t.Fatalf("expected leaderboard, got %s", v.Phase())
	}
}

func TestViewSyncRefusesSnapshotBehindView(t *testing.T) {
	v := NewView()
	mustApply(t, v, advanceEvent(t, "e1", 0), Applied)
	mustApply(t, v, advanceEvent(t, "e2", 1), Applied)

	ok := v.Sync(domain.GameState{Game: domain.Game{
		Status: domain.StatusActive, Phase: domain.PhaseReveal, CurrentQuestionIndex: 0, QuestionCount: 3, Version: 7,
	}})
	if ok {
		t.Fatalf("older position must be refused")
	}
	if v.Index() != 1 {
		t.Fatalf("view moved back to %d", v.Index())
	}
}

func TestViewEchoThenConfirmation(t *testing.T) {
	v := NewView()
	v.Sync(domain.GameState{
		Game:     domain.Game{Status: domain.StatusActive, Phase: domain.PhaseQuestion, QuestionCount: 2, Version: 2},
		Question: &domain.QuestionContent{QuestionID: "q1", Number: 1},
	})

	if !v.Echo() {
		t.Fatalf("echo refused")
	}
	if v.Phase() != domain.PhaseReveal || v.Screen().Reveal != nil {
		t.Fatalf("expected content-less reveal, got %+v", v.Screen())
	}
	mustApply(t, v, revealEvent(t, "e1", 0), Duplicate)
	if r := v.Screen().Reveal; r == nil || r.CorrectAnswer != domain.OptionA {
		t.Fatalf("confirmation should fill the reveal content, got %+v", r)
	}

	// last of two questions is q2; echo from its reveal goes to results
	v.Echo()
	v.Echo()
	mustApply(t, v, advanceEvent(t, "e2", 1), Duplicate)
	if v.Screen().Question == nil || v.QuestionID() != "q2" {
		t.Fatalf("advance confirmation should fill the question content")
	}
	v.Echo()
	v.Echo()
	if v.Phase() != domain.PhaseResults {
		t.Fatalf("expected results after the last reveal, got %s", v.Phase())
	}
	mustApply(t, v, event(t, "e3", domain.EventGameEnd, domain.GameEnd{CompletedAt: t0}), Duplicate)
}

func TestViewResultsIsTerminal(t *testing.T) {
	v := NewView()
	mustApply(t, v, advanceEvent(t, "e1", 0), Applied)
	mustApply(t, v, event(t, "e2", domain.EventGameEnd, domain.GameEnd{CompletedAt: t0}), Applied)
	mustApply(t, v, advanceEvent(t, "e3", 1), Stale)
	mustApply(t, v, event(t, "e4", domain.EventGamePause, domain.GamePause{PausedAt: t0}), Stale)
	if v.Phase() != domain.PhaseResults {
		t.Fatalf("left results: %s", v.Phase())
	}
}

func TestViewPauseEventsUseTimestamps(t *testing.T) {
	v := NewView()
	mustApply(t, v, advanceEvent(t, "e1", 0), Applied)

	mustApply(t, v, event(t, "e3", domain.EventGameResume, domain.GameResume{ResumedAt: t0.Add(20 * time.Second)}), Duplicate)
	mustApply(t, v, event(t, "e2", domain.EventGamePause, domain.GamePause{PausedAt: t0.Add(10 * time.Second)}), Stale)
	if v.Paused() {
		t.Fatalf("reordered pause must not stick")
	}

	mustApply(t, v, event(t, "e4", domain.EventGamePause, domain.GamePause{PausedAt: t0.Add(30 * time.Second)}), Applied)
	if !v.Paused() {
		t.Fatalf("expected paused")
	}
	if !v.EchoPause(false) || v.Paused() {
		t.Fatalf("local resume echo failed")
	}
	mustApply(t, v, event(t, "e5", domain.EventGameResume, domain.GameResume{ResumedAt: t0.Add(40 * time.Second)}), Duplicate)
}

func TestViewRankChangesPerLeaderboard(t *testing.T) {
	v := NewView()
	mustApply(t, v, advanceEvent(t, "e1", 0), Applied)
	mustApply(t, v, revealEvent(t, "e2", 0), Applied)
	mustApply(t, v, event(t, "e3", domain.EventLeaderboardReady, domain.LeaderboardReady{QuestionID: "q1"}), Applied)

	first := ranking.Rank([]ranking.Entry{
		{PlayerID: "a", Name: "Ann", TotalScore: 15},
		{PlayerID: "b", Name: "Ben", TotalScore: 10},
	})
	v.SetStandings(first)
	v.SetStandings(first)
	if s := v.Screen().Standings; s[0].Change != ranking.ChangeNew || s[1].Change != ranking.ChangeNew {
		t.Fatalf("first leaderboard should mark everyone new: %+v", s)
	}

	mustApply(t, v, advanceEvent(t, "e4", 1), Applied)
	mustApply(t, v, revealEvent(t, "e5", 1), Applied)
	mustApply(t, v, event(t, "e6", domain.EventLeaderboardReady, domain.LeaderboardReady{QuestionID: "q2"}), Applied)
	v.SetStandings(ranking.Rank([]ranking.Entry{
		{PlayerID: "a", Name: "Ann", TotalScore: 15},
		{PlayerID: "b", Name: "Ben", TotalScore: 25},
	}))

	s := v.Screen().Standings
	if s[0].PlayerID != "b" || s[0].Change != ranking.ChangeUp || s[0].Delta != 1 {
		t.Fatalf("expected Ben up one: %+v", s[0])
	}
	if s[1].Change != ranking.ChangeDown || s[1].Delta != -1 {
		t.Fatalf("expected Ann down one: %+v", s[1])
	}
}
