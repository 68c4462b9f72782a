package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"livequiz-client/internal/domain"
)

func TestTopicStoreLifecycle(t *testing.T) {
	store := NewTopicStore()

	_, cancel := store.Subscribe("session/ABC/question")
	if _, ok := store.Get("session/ABC/question"); !ok {
		t.Fatalf("expected topic present")
	}

	cancel()
	cancel()
	if _, ok := store.Get("session/ABC/question"); ok {
		t.Fatalf("expected topic removed when empty")
	}
}

func TestTopicStorePublishRetainsEvent(t *testing.T) {
	store := NewTopicStore()
	ev, err := domain.NewEvent(domain.KindTimeUp, "ABC", domain.TimeUp{QuestionID: "q1", CanStillAnswer: true})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := store.Publish(context.Background(), "session/ABC/time-up", ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, ok := store.Get("session/ABC/time-up"); !ok {
		t.Fatalf("expected publish to create the topic")
	}

	if err := store.ClearRetained(context.Background(), "session/ABC/time-up"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	ch, cancel := store.Subscribe("session/ABC/time-up")
	defer cancel()
	select {
	case got := <-ch:
		t.Fatalf("expected nothing replayed after clear, got %+v", got)
	default:
	}
}

func TestTopicStoreSubscribeRacingCancel(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		store := NewTopicStore()
		_, cancelA := store.Subscribe("session/ABC/score")

		var wg sync.WaitGroup
		var chB <-chan domain.Event
		var cancelB func()
		wg.Add(2)
		go func() {
			defer wg.Done()
			cancelA()
		}()
		go func() {
			defer wg.Done()
			chB, cancelB = store.Subscribe("session/ABC/score")
		}()
		wg.Wait()

		ev, _ := domain.NewEvent(domain.KindScoreUpdate, "ABC", domain.ScoreUpdate{TotalScore: i})
		if err := store.Publish(ctx, "session/ABC/score", ev); err != nil {
			t.Fatalf("publish: %v", err)
		}
		select {
		case got := <-chB:
			if got.ID != ev.ID {
				t.Fatalf("unexpected event %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: subscriber lost its topic to a concurrent cancel", i)
		}
		cancelB()
	}
}
