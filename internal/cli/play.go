package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"livequiz-client/internal/app"
	"livequiz-client/internal/config"
	"livequiz-client/internal/domain"
	"livequiz-client/internal/messaging"
	"livequiz-client/internal/view"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewPlayCmd joins a session as a participant.
func NewPlayCmd(configPath *string) *cobra.Command {
	var relayURL, participantID, nickname string

	cmd := &cobra.Command{
		Use:   "play <session-code>",
		Short: "Join a live session and answer questions from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if relayURL == "" {
				relayURL = cfg.Relay.URL
			}
			if participantID == "" {
				participantID = uuid.NewString()
			}

			relayToken, err := tokenSource(cfg).Token()
			if err != nil && !errors.Is(err, domain.ErrMissingToken) {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := messaging.Dial(ctx, relayURL, relayToken)
			if err != nil {
				return err
			}
			defer client.Close()

			return play(ctx, client, app.ParticipantConfig{
				SessionCode:   strings.TrimSpace(args[0]),
				ParticipantID: participantID,
				Nickname:      nickname,
			}, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&relayURL, "relay", "", "relay WebSocket URL (defaults to config relay.url)")
	cmd.Flags().StringVar(&participantID, "participant-id", "", "participant id (random if empty)")
	cmd.Flags().StringVar(&nickname, "nickname", "", "name shown to the host")
	return cmd
}

type eventSource interface {
	SubscribeAll(ctx context.Context, topics []string) (<-chan domain.Event, func(), error)
	Done() <-chan struct{}
}

func play(ctx context.Context, client *messaging.Client, cfg app.ParticipantConfig, in io.Reader, out io.Writer) error {
	return runParticipant(ctx, client, messaging.NewAnswerPublisher(client), cfg, in, out)
}

// runParticipant drives one participant screen: events from source update
// the view, lines from in become answers.
func runParticipant(ctx context.Context, source eventSource, submitter app.Submitter, cfg app.ParticipantConfig, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := &lockedWriter{w: out}
	participant := app.NewParticipant(cfg, submitter)
	go func() { _ = participant.Run(ctx) }()

	events, unsubscribe, err := source.SubscribeAll(ctx, domain.ParticipantTopics(cfg.SessionCode))
	if err != nil {
		return err
	}
	defer unsubscribe()
	go func() { _ = participant.Consume(ctx, events) }()

	updates, stopUpdates := participant.Subscribe()
	defer stopUpdates()

	ended := make(chan struct{})
	renderDone := make(chan struct{})
	defer func() {
		cancel()
		<-renderDone
	}()
	go func() {
		defer close(renderDone)
		var once sync.Once
		for v := range updates {
			var buf bytes.Buffer
			view.RenderParticipant(&buf, v)
			_, _ = w.Write(buf.Bytes())
			if v.Ended {
				once.Do(func() { close(ended) })
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ended:
			return nil
		case <-source.Done():
			view.ErrorBanner(w, errors.New("connection to relay lost"))
			return domain.ErrNotConnected
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			current, err := participant.Snapshot(ctx)
			if err != nil {
				return nil
			}
			optionID, ok := view.OptionForLetter(current.Question, line)
			if !ok {
				if current.Question != nil && len(current.Question.Options) > 0 {
					view.ErrorBanner(w, fmt.Errorf("invalid input, enter a letter A-%c", 'A'+len(current.Question.Options)-1))
				}
				continue
			}
			if _, err := participant.Answer(ctx, optionID); err != nil {
				view.ErrorBanner(w, err)
			}
		}
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
