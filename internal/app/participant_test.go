package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"livequiz-client/internal/app"
	"livequiz-client/internal/domain"
)

// gatedSubmitter blocks every submit until the test releases it.
type gatedSubmitter struct {
	mu      sync.Mutex
	calls   []domain.AnswerSubmission
	results chan error
	started chan struct{}
}

func newGatedSubmitter() *gatedSubmitter {
	return &gatedSubmitter{results: make(chan error), started: make(chan struct{}, 8)}
}

func (s *gatedSubmitter) SubmitAnswer(ctx context.Context, _ string, submission domain.AnswerSubmission) error {
	s.mu.Lock()
	s.calls = append(s.calls, submission)
	s.mu.Unlock()
	s.started <- struct{}{}
	select {
	case err := <-s.results:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *gatedSubmitter) call(i int) domain.AnswerSubmission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

func (s *gatedSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func startParticipant(t *testing.T, submitter app.Submitter) (*app.Participant, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p := app.NewParticipantWithClock(app.ParticipantConfig{
		SessionCode:   "ABC123",
		ParticipantID: "p1",
		Nickname:      "alice",
	}, submitter, func() time.Time { return clock })
	go func() { _ = p.Run(ctx) }()
	return p, ctx
}

func pushQuestion(t *testing.T, ctx context.Context, p *app.Participant, id string) {
	t.Helper()
	ev, err := domain.NewEvent(domain.KindQuestion, "ABC123", domain.Question{
		ID:   id,
		Text: "Pick one",
		Options: []domain.QuestionOption{
			{ID: "A", Text: "first"},
			{ID: "B", Text: "second"},
			{ID: "C", Text: "third"},
		},
	})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if err := p.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("handle question: %v", err)
	}
}

func waitForView(t *testing.T, updates <-chan app.ParticipantView, match func(app.ParticipantView) bool) app.ParticipantView {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case view := <-updates:
			if match(view) {
				return view
			}
		case <-deadline:
			t.Fatalf("timed out waiting for view")
		}
	}
}

func TestParticipantSubmitFlow(t *testing.T) {
	submitter := newGatedSubmitter()
	p, ctx := startParticipant(t, submitter)
	updates, cancel := p.Subscribe()
	defer cancel()

	pushQuestion(t, ctx, p, "q1")

	accepted, err := p.Answer(ctx, "B")
	if err != nil || !accepted {
		t.Fatalf("expected answer accepted, got %v %v", accepted, err)
	}
	<-submitter.started

	again, _ := p.Answer(ctx, "C")
	if again {
		t.Fatalf("expected duplicate answer rejected while submitting")
	}

	submitter.results <- nil
	view := waitForView(t, updates, func(v app.ParticipantView) bool { return v.State == app.StateCommitted })
	if view.Interactive || view.Feedback.Kind != app.FeedbackAccepted || view.Selection != "B" {
		t.Fatalf("unexpected committed view %+v", view)
	}
	if submitter.callCount() != 1 {
		t.Fatalf("expected one dispatch, got %d", submitter.callCount())
	}
	if got := submitter.call(0); got.QuestionID != "q1" || got.OptionID != "B" || got.ParticipantID != "p1" {
		t.Fatalf("unexpected submission %+v", got)
	}
}

func TestParticipantFailureAllowsRetry(t *testing.T) {
	submitter := newGatedSubmitter()
	p, ctx := startParticipant(t, submitter)
	updates, cancel := p.Subscribe()
	defer cancel()

	pushQuestion(t, ctx, p, "q1")
	if ok, _ := p.Answer(ctx, "C"); !ok {
		t.Fatalf("expected answer accepted")
	}
	<-submitter.started
	submitter.results <- errors.New("network error")

	view := waitForView(t, updates, func(v app.ParticipantView) bool { return v.Feedback.Kind == app.FeedbackFailed })
	if !view.Interactive || view.Selection != "" {
		t.Fatalf("expected interactive idle view after failure, got %+v", view)
	}
	if ok, _ := p.Answer(ctx, "C"); !ok {
		t.Fatalf("expected retry accepted")
	}
}

func TestParticipantDiscardsLateResolution(t *testing.T) {
	submitter := newGatedSubmitter()
	p, ctx := startParticipant(t, submitter)

	pushQuestion(t, ctx, p, "q1")
	if ok, _ := p.Answer(ctx, "A"); !ok {
		t.Fatalf("expected answer accepted")
	}
	<-submitter.started

	pushQuestion(t, ctx, p, "q2")
	submitter.results <- nil

	// the resolution is applied on the loop; a snapshot afterwards observes it
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		view, err := p.Snapshot(ctx)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if view.Question == nil || view.Question.ID != "q2" {
			t.Fatalf("expected q2 active, got %+v", view.Question)
		}
		if !view.Interactive || view.Feedback.Kind != app.FeedbackNone {
			t.Fatalf("late q1 result leaked into q2: %+v", view)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestParticipantTimeUpNotice(t *testing.T) {
	p, ctx := startParticipant(t, newGatedSubmitter())
	pushQuestion(t, ctx, p, "q1")

	// completion topic may carry a time-up; routing is by kind only
	ev, _ := domain.NewEvent(domain.KindTimeUp, "ABC123", domain.TimeUp{QuestionID: "q1", CanStillAnswer: true})
	if err := p.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("handle time-up: %v", err)
	}
	view, _ := p.Snapshot(ctx)
	if !view.Interactive || !view.Expired || view.Feedback.Kind != app.FeedbackTimeExpired {
		t.Fatalf("unexpected view after time-up %+v", view)
	}
}

func TestParticipantTimeUpWithoutFlagKeepsAnswersOpen(t *testing.T) {
	p, ctx := startParticipant(t, newGatedSubmitter())
	pushQuestion(t, ctx, p, "q1")

	ev, _ := domain.NewEvent(domain.KindTimeUp, "ABC123", map[string]string{"questionId": "q1"})
	if err := p.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("handle time-up: %v", err)
	}
	view, _ := p.Snapshot(ctx)
	if !view.Interactive || !view.Expired || !view.Feedback.CanStillAnswer {
		t.Fatalf("expected open answers after time-up, got %+v", view)
	}
	if view.Feedback.Message == "Time's up!" {
		t.Fatalf("notice must say answering is still possible, got %q", view.Feedback.Message)
	}
}

func TestParticipantDropsTimeUpOlderThanQuestion(t *testing.T) {
	p, ctx := startParticipant(t, newGatedSubmitter())

	stale, _ := domain.NewEvent(domain.KindTimeUp, "ABC123", domain.TimeUp{CanStillAnswer: true})
	stale.SentAt = stale.SentAt.Add(-time.Minute)
	pushQuestion(t, ctx, p, "q2")
	// replayed after q2 although it was sent for the previous question
	if err := p.HandleEvent(ctx, stale); err != nil {
		t.Fatalf("handle time-up: %v", err)
	}
	view, _ := p.Snapshot(ctx)
	if view.Expired || view.Feedback.Kind != app.FeedbackNone {
		t.Fatalf("stale time-up applied to q2: %+v", view)
	}

	fresh, _ := domain.NewEvent(domain.KindTimeUp, "ABC123", domain.TimeUp{CanStillAnswer: true})
	fresh.SentAt = fresh.SentAt.Add(time.Second)
	if err := p.HandleEvent(ctx, fresh); err != nil {
		t.Fatalf("handle time-up: %v", err)
	}
	view, _ = p.Snapshot(ctx)
	if !view.Expired {
		t.Fatalf("expected time-up for q2 to apply: %+v", view)
	}
}

func TestParticipantDropsMalformedEvents(t *testing.T) {
	p, ctx := startParticipant(t, newGatedSubmitter())
	pushQuestion(t, ctx, p, "q1")
	before, _ := p.Snapshot(ctx)

	events := []domain.Event{
		{ID: "1", Kind: domain.KindTimeUp, Payload: []byte(`{not json`)},
		{ID: "2", Kind: domain.KindQuestion, Payload: []byte(`{"text":"no id"}`)},
		{ID: "3", Kind: "mystery", Payload: []byte(`{}`)},
		{ID: "4", Kind: domain.KindTimeUp, SessionCode: "OTHER", Payload: []byte(`{"canStillAnswer":true}`)},
	}
	for _, ev := range events {
		if err := p.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("malformed event returned error: %v", err)
		}
	}
	after, _ := p.Snapshot(ctx)
	if after.Expired != before.Expired || after.Feedback != before.Feedback || after.Question.ID != "q1" {
		t.Fatalf("malformed events changed state: %+v -> %+v", before, after)
	}
}

func TestParticipantCompletionAndScore(t *testing.T) {
	p, ctx := startParticipant(t, newGatedSubmitter())
	pushQuestion(t, ctx, p, "q1")

	score, _ := domain.NewEvent(domain.KindScoreUpdate, "ABC123", domain.ScoreUpdate{ParticipantID: "p1", TotalScore: 950, Rank: 2})
	other, _ := domain.NewEvent(domain.KindScoreUpdate, "ABC123", domain.ScoreUpdate{ParticipantID: "p9", TotalScore: 10})
	done, _ := domain.NewEvent(domain.KindCompletion, "ABC123", domain.Completion{Message: "Quiz finished", FinalScore: 950})
	for _, ev := range []domain.Event{score, other, done} {
		if err := p.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	view, _ := p.Snapshot(ctx)
	if view.Score == nil || view.Score.TotalScore != 950 {
		t.Fatalf("expected own score, got %+v", view.Score)
	}
	if !view.Ended || view.Question != nil || view.Completion.Message != "Quiz finished" {
		t.Fatalf("expected ended view, got %+v", view)
	}
	if ok, _ := p.Answer(ctx, "A"); ok {
		t.Fatalf("expected answer after completion to be rejected")
	}
}

func TestParticipantRejectsUnknownOption(t *testing.T) {
	submitter := newGatedSubmitter()
	p, ctx := startParticipant(t, submitter)
	pushQuestion(t, ctx, p, "q1")

	if ok, _ := p.Answer(ctx, "Z"); ok {
		t.Fatalf("expected unknown option to be rejected")
	}
	if submitter.callCount() != 0 {
		t.Fatalf("expected no dispatch")
	}
}

func TestParticipantStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := app.NewParticipant(app.ParticipantConfig{SessionCode: "ABC123"}, newGatedSubmitter())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	updates, stop := p.Subscribe()
	defer stop()
	<-updates // primed view

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if _, ok := <-updates; ok {
		t.Fatalf("expected updates channel closed")
	}
	if _, err := p.Snapshot(context.Background()); !errors.Is(err, domain.ErrParticipantStopped) {
		t.Fatalf("expected ErrParticipantStopped, got %v", err)
	}
}
