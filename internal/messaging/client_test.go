package messaging_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livequiz-client/internal/app"
	"livequiz-client/internal/auth"
	"livequiz-client/internal/domain"
	"livequiz-client/internal/infra/memory"
	"livequiz-client/internal/messaging"
	transport "livequiz-client/internal/transport/http"
)

func startRelay(t *testing.T) string {
	t.Helper()
	store := memory.NewTopicStore()
	server := httptest.NewServer(transport.NewRouter(app.NewRelayService(store, store), auth.NewVerifier("")))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *messaging.Client {
	t.Helper()
	client, err := messaging.Dial(context.Background(), url, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func publish(t *testing.T, client *messaging.Client, code string, kind domain.EventKind, payload any) domain.Event {
	t.Helper()
	ev, err := domain.NewEvent(kind, code, payload)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	topic, err := domain.TopicForKind(code, kind)
	if err != nil {
		t.Fatalf("topic: %v", err)
	}
	if err := client.Publish(context.Background(), topic, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	return ev
}

func TestSubscribeAllMergesTopics(t *testing.T) {
	url := startRelay(t)
	listener := dial(t, url)
	host := dial(t, url)

	events, cancel, err := listener.SubscribeAll(context.Background(), domain.ParticipantTopics("ABC123"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	publish(t, host, "ABC123", domain.KindQuestion, domain.Question{ID: "q1"})
	publish(t, host, "ABC123", domain.KindScoreUpdate, domain.ScoreUpdate{ParticipantID: "p1", TotalScore: 5})

	kinds := map[domain.EventKind]bool{}
	deadline := time.After(5 * time.Second)
	for len(kinds) < 2 {
		select {
		case ev := <-events:
			kinds[ev.Kind] = true
		case <-deadline:
			t.Fatalf("timed out, saw %v", kinds)
		}
	}
}

func TestCancelAndCloseCloseChannels(t *testing.T) {
	url := startRelay(t)
	client := dial(t, url)

	events, cancel, err := client.Subscribe(context.Background(), domain.QuestionTopic("ABC123"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	cancel()
	if _, ok := <-events; ok {
		t.Fatalf("expected channel closed after cancel")
	}

	events, _, err = client.Subscribe(context.Background(), domain.CompletionTopic("ABC123"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = client.Close()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatalf("expected channel closed after Close")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after Close")
	}

	if _, _, err := client.Subscribe(context.Background(), domain.QuestionTopic("ABC123")); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	ev, _ := domain.NewEvent(domain.KindQuestion, "ABC123", domain.Question{ID: "q1"})
	if err := client.Publish(context.Background(), domain.QuestionTopic("ABC123"), ev); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected on publish, got %v", err)
	}
}

func TestSubscribeRejectsInvalidTopic(t *testing.T) {
	client := dial(t, startRelay(t))
	if _, _, err := client.Subscribe(context.Background(), "lobby"); !errors.Is(err, app.ErrInvalidTopic) {
		t.Fatalf("expected invalid topic, got %v", err)
	}
}

func TestParticipantPlaysThroughRelay(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	player := dial(t, url)
	host := dial(t, url)

	answers, stopAnswers, err := host.Subscribe(ctx, domain.AnswerTopic("ABC123"))
	if err != nil {
		t.Fatalf("subscribe answers: %v", err)
	}
	defer stopAnswers()

	participant := app.NewParticipant(app.ParticipantConfig{
		SessionCode:   "ABC123",
		ParticipantID: "p1",
		Nickname:      "alice",
	}, messaging.NewAnswerPublisher(player))
	go func() { _ = participant.Run(ctx) }()

	events, stopEvents, err := player.SubscribeAll(ctx, domain.ParticipantTopics("ABC123"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stopEvents()
	go func() { _ = participant.Consume(ctx, events) }()

	updates, stopUpdates := participant.Subscribe()
	defer stopUpdates()

	publish(t, host, "ABC123", domain.KindQuestion, domain.Question{
		ID:      "q1",
		Text:    "2 + 2?",
		Options: []domain.QuestionOption{{ID: "o1", Text: "3"}, {ID: "o2", Text: "4"}},
	})
	waitFor(t, updates, func(v app.ParticipantView) bool { return v.Question != nil && v.Question.ID == "q1" })

	ok, err := participant.Answer(ctx, "o2")
	if err != nil || !ok {
		t.Fatalf("answer: ok=%v err=%v", ok, err)
	}
	view := waitFor(t, updates, func(v app.ParticipantView) bool { return v.State == app.StateCommitted })
	if view.Feedback.Kind != app.FeedbackAccepted || view.Interactive {
		t.Fatalf("unexpected committed view %+v", view)
	}

	select {
	case ev := <-answers:
		var submission domain.AnswerSubmission
		if err := ev.Decode(&submission); err != nil {
			t.Fatalf("decode answer: %v", err)
		}
		if ev.Kind != domain.KindAnswer || submission.QuestionID != "q1" || submission.OptionID != "o2" || submission.ParticipantID != "p1" {
			t.Fatalf("unexpected answer event %+v %+v", ev, submission)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("host never saw the answer")
	}

	publish(t, host, "ABC123", domain.KindCompletion, domain.Completion{Message: "Quiz finished", FinalScore: 900, FinalRank: 1})
	waitFor(t, updates, func(v app.ParticipantView) bool { return v.Ended })
}

func waitFor(t *testing.T, updates <-chan app.ParticipantView, match func(app.ParticipantView) bool) app.ParticipantView {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case view, ok := <-updates:
			if !ok {
				t.Fatalf("updates closed")
			}
			if match(view) {
				return view
			}
		case <-deadline:
			t.Fatalf("timed out waiting for view")
		}
	}
}
