package app

import (
	"context"
	"log"
	"sync"
	"time"

	"livequiz-client/internal/domain"
)

// Submitter delivers an answer to the backend.
type Submitter interface {
	SubmitAnswer(ctx context.Context, sessionCode string, submission domain.AnswerSubmission) error
}

// ParticipantConfig identifies who is playing which session.
type ParticipantConfig struct {
	SessionCode   string
	ParticipantID string
	Nickname      string
	SubmitTimeout time.Duration
}

// ParticipantView is a render-ready snapshot of the participant screen.
type ParticipantView struct {
	SessionCode string
	Question    *domain.Question
	Interactive bool
	Expired     bool
	Selection   string
	State       AnswerState
	Feedback    Feedback
	Score       *domain.ScoreUpdate
	Ended       bool
	Completion  domain.Completion
}

// Participant owns the answer state machine for one play session. All state
// transitions run on the goroutine executing Run; other goroutines enqueue
// operations and wait for them.
type Participant struct {
	cfg       ParticipantConfig
	submitter Submitter
	now       func() time.Time

	ops  chan func()
	done chan struct{}

	// owned by the Run goroutine
	runCtx   context.Context
	machine  *AnswerMachine
	question *domain.Question
	shownAt  time.Time
	score    *domain.ScoreUpdate
	ended    bool
	final    domain.Completion

	// sentAt of the active question event; older time-ups belong to an earlier question
	questionSentAt time.Time

	mu          sync.Mutex
	last        ParticipantView
	subscribers map[chan ParticipantView]struct{}
}

func NewParticipant(cfg ParticipantConfig, submitter Submitter) *Participant {
	return NewParticipantWithClock(cfg, submitter, time.Now)
}

// NewParticipantWithClock allows deterministic response times in tests.
func NewParticipantWithClock(cfg ParticipantConfig, submitter Submitter, now func() time.Time) *Participant {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 5 * time.Second
	}
	p := &Participant{
		cfg:         cfg,
		submitter:   submitter,
		now:         now,
		ops:         make(chan func()),
		done:        make(chan struct{}),
		runCtx:      context.Background(),
		machine:     NewAnswerMachine(),
		subscribers: make(map[chan ParticipantView]struct{}),
	}
	p.last = p.viewLocked()
	return p
}

// Run executes state transitions until ctx is canceled. It must be called once.
func (p *Participant) Run(ctx context.Context) error {
	p.runCtx = ctx
	defer p.closeSubscribers()
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op := <-p.ops:
			op()
		}
	}
}

// Consume feeds events into the loop until events is closed or ctx ends.
func (p *Participant) Consume(ctx context.Context, events <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := p.HandleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// HandleEvent applies one real-time event. Malformed or unrelated events are
// logged and dropped; they never produce an error.
func (p *Participant) HandleEvent(ctx context.Context, ev domain.Event) error {
	return p.do(ctx, func() {
		if p.apply(ev) {
			p.publish()
		}
	})
}

// Answer tries to submit optionID for the active question. The returned bool
// reports whether the attempt was accepted for processing, not whether the
// server confirmed it.
func (p *Participant) Answer(ctx context.Context, optionID string) (bool, error) {
	accepted := false
	err := p.do(ctx, func() {
		if p.question != nil && !hasOption(p.question, optionID) {
			log.Printf("answer %q ignored: not an option of question %s", optionID, p.question.ID)
			return
		}
		d, ok := p.machine.SubmitAnswer(optionID)
		if !ok {
			return
		}
		accepted = true
		submission := domain.AnswerSubmission{
			ParticipantID:  p.cfg.ParticipantID,
			Nickname:       p.cfg.Nickname,
			QuestionID:     d.Ref.ID,
			OptionID:       d.OptionID,
			ResponseTimeMs: p.now().Sub(p.shownAt).Milliseconds(),
		}
		go p.dispatch(p.runCtx, d, submission)
		p.publish()
	})
	return accepted, err
}

// Snapshot returns the current view.
func (p *Participant) Snapshot(ctx context.Context) (ParticipantView, error) {
	var view ParticipantView
	err := p.do(ctx, func() {
		view = p.viewLocked()
	})
	return view, err
}

// Subscribe returns a channel of view updates, primed with the latest view.
// The caller must invoke the returned cancel function.
func (p *Participant) Subscribe() (<-chan ParticipantView, func()) {
	ch := make(chan ParticipantView, 4)

	p.mu.Lock()
	ch <- p.last
	select {
	case <-p.done:
		close(ch)
		p.mu.Unlock()
		return ch, func() {}
	default:
	}
	p.subscribers[ch] = struct{}{}
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		if _, ok := p.subscribers[ch]; ok {
			delete(p.subscribers, ch)
			close(ch)
		}
		p.mu.Unlock()
	}
	return ch, cancel
}

func (p *Participant) dispatch(ctx context.Context, d Dispatch, submission domain.AnswerSubmission) {
	submitCtx, cancel := context.WithTimeout(ctx, p.cfg.SubmitTimeout)
	defer cancel()
	err := p.submitter.SubmitAnswer(submitCtx, p.cfg.SessionCode, submission)
	p.enqueue(func() {
		if p.machine.Resolve(d, err) {
			p.publish()
		}
	})
}

func (p *Participant) apply(ev domain.Event) bool {
	if ev.SessionCode != "" && ev.SessionCode != p.cfg.SessionCode {
		log.Printf("dropping %s event for session %s", ev.Kind, ev.SessionCode)
		return false
	}
	switch ev.Kind {
	case domain.KindQuestion:
		var q domain.Question
		if err := ev.Decode(&q); err != nil || q.ID == "" {
			log.Printf("dropping malformed question event: %v", err)
			return false
		}
		p.question = &q
		p.shownAt = p.now()
		p.questionSentAt = ev.SentAt
		p.ended = false
		p.machine.OnQuestionChanged(q.ID)
	case domain.KindTimeUp:
		var n domain.TimeUp
		if err := ev.Decode(&n); err != nil {
			log.Printf("dropping malformed time-up event: %v", err)
			return false
		}
		if !ev.SentAt.IsZero() && ev.SentAt.Before(p.questionSentAt) {
			log.Printf("dropping time-up %s sent before the active question", ev.ID)
			return false
		}
		return p.machine.OnExpiryNotification(n)
	case domain.KindCompletion:
		var c domain.Completion
		if err := ev.Decode(&c); err != nil {
			log.Printf("dropping malformed completion event: %v", err)
			return false
		}
		p.ended = true
		p.final = c
		p.question = nil
		p.machine.Clear()
	case domain.KindScoreUpdate:
		var s domain.ScoreUpdate
		if err := ev.Decode(&s); err != nil {
			log.Printf("dropping malformed score event: %v", err)
			return false
		}
		if s.ParticipantID != "" && s.ParticipantID != p.cfg.ParticipantID {
			return false
		}
		p.score = &s
	default:
		log.Printf("ignoring %q event %s", ev.Kind, ev.ID)
		return false
	}
	return true
}

func (p *Participant) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		fn()
		close(finished)
	}
	select {
	case p.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return domain.ErrParticipantStopped
	}
	<-finished
	return nil
}

func (p *Participant) enqueue(op func()) {
	select {
	case p.ops <- op:
	case <-p.done:
	}
}

func (p *Participant) publish() {
	view := p.viewLocked()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = view
	for ch := range p.subscribers {
		select {
		case ch <- view:
		default:
			// keep only the newest view for slow renderers
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}

func (p *Participant) closeSubscribers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.subscribers {
		delete(p.subscribers, ch)
		close(ch)
	}
}

// viewLocked must run on the loop goroutine (or before Run starts).
func (p *Participant) viewLocked() ParticipantView {
	selection, _ := p.machine.Selection()
	view := ParticipantView{
		SessionCode: p.cfg.SessionCode,
		Interactive: p.machine.IsInteractive(),
		Expired:     p.machine.Expired(),
		Selection:   selection,
		State:       p.machine.State(),
		Feedback:    p.machine.CurrentFeedback(),
		Ended:       p.ended,
		Completion:  p.final,
	}
	if p.question != nil {
		q := *p.question
		q.Options = append([]domain.QuestionOption(nil), p.question.Options...)
		view.Question = &q
	}
	if p.score != nil {
		s := *p.score
		view.Score = &s
	}
	return view
}

func hasOption(q *domain.Question, optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}
