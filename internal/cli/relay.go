package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livequiz-client/internal/app"
	"livequiz-client/internal/auth"
	"livequiz-client/internal/config"
	"livequiz-client/internal/infra/memory"
	redistopics "livequiz-client/internal/infra/redis"
	transport "livequiz-client/internal/transport/http"

	"github.com/spf13/cobra"
)

// NewRelayCmd builds the CLI subcommand that runs the topic relay.
func NewRelayCmd(configPath, port *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the real-time topic relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd.Context(), *configPath, *port)
		},
	}
	cmd.AddCommand(newRelayTokenCmd(configPath))
	return cmd
}

func runRelay(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var topics interface {
		app.TopicRepository
		app.EventPublisher
	}
	if redisClient := newRedisClient(cfg); redisClient != nil {
		defer redisClient.Close()
		store := redistopics.NewTopicStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		if err := store.Start(ctx); err != nil {
			return err
		}
		topics = store
		log.Printf("relay topics bridged through redis at %s", cfg.Redis.Addr)
	} else {
		topics = memory.NewTopicStore()
	}

	verifier := auth.NewVerifier(cfg.Relay.JWTSecret)
	if !verifier.Enabled() {
		log.Printf("relay jwt secret not set, accepting unauthenticated clients")
	}
	relay := app.NewRelayService(topics, topics)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(relay, verifier),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting relay on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start relay: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down relay...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down relay...")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}

func newRelayTokenCmd(configPath *string) *cobra.Command {
	var participantID, sessionCode, subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed relay token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			claims := auth.Claims{ParticipantID: participantID, SessionCode: sessionCode}
			claims.Subject = subject
			signed, err := auth.NewVerifier(cfg.Relay.JWTSecret).Issue(claims, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&participantID, "participant-id", "", "participant the token is issued to")
	cmd.Flags().StringVar(&sessionCode, "session", "", "restrict the token to one session's topics")
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for none")
	return cmd
}
