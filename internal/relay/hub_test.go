package relay

import (
	"context"
	"testing"

	"trivia-sync-service/internal/domain"
)

func TestHubFanOutPerChannel(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(4)

	a, cancelA, _ := hub.Subscribe(ctx, Channel("g1"))
	defer cancelA()
	b, cancelB, _ := hub.Subscribe(ctx, Channel("g1"))
	defer cancelB()
	other, cancelOther, _ := hub.Subscribe(ctx, Channel("g2"))
	defer cancelOther()

	ev, err := NewEvent(Channel("g1"), domain.EventScoresUpdated, domain.ScoresUpdated{QuestionID: "q1"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := hub.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, ch := range []<-chan Event{a, b} {
		got := <-ch
		var payload domain.ScoresUpdated
		if err := got.Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ID != ev.ID || payload.QuestionID != "q1" {
			t.Fatalf("unexpected event %+v", got)
		}
	}
	select {
	case got := <-other:
		t.Fatalf("other channel received %+v", got)
	default:
	}
}

func TestHubDropsOldestForSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(1)
	ch, cancel, _ := hub.Subscribe(ctx, "c")
	defer cancel()

	first, _ := NewEvent("c", domain.EventGamePause, domain.GamePause{})
	second, _ := NewEvent("c", domain.EventGameResume, domain.GameResume{})
	_ = hub.Publish(ctx, first)
	_ = hub.Publish(ctx, second)

	got := <-ch
	if got.ID != second.ID {
		t.Fatalf("expected newest event to survive, got %s", got.Name)
	}
}

func TestHubCancelRemovesEmptyChannel(t *testing.T) {
	hub := NewHub(1)
	_, cancel, _ := hub.Subscribe(context.Background(), "c")
	if hub.Subscribers("c") != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	cancel()
	if hub.Subscribers("c") != 0 {
		t.Fatalf("expected channel dropped after cancel")
	}
}
