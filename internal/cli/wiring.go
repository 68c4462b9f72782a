package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"livequiz-client/internal/app"
	"livequiz-client/internal/auth"
	"livequiz-client/internal/config"
	"livequiz-client/internal/infra/memory"
	pgarchive "livequiz-client/internal/infra/postgres"
	rediscache "livequiz-client/internal/infra/redis"
	"livequiz-client/internal/infra/rest"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

func tokenSource(cfg config.Config) *auth.Source {
	raw := token
	if raw == "" {
		raw = cfg.API.Token
	}
	return auth.NewSource(raw, cfg.API.TokenFile)
}

func newReportsClient(cfg config.Config) *rest.ReportsClient {
	httpClient := &http.Client{Timeout: config.TTLDuration(cfg.API.Timeout, 15*time.Second)}
	return rest.NewReportsClient(cfg.API.BaseURL, httpClient, tokenSource(cfg))
}

func newRedisClient(cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

type reportDeps struct {
	offline bool
	archive bool
}

// newReportService wires the REST client, optional Postgres archive and the
// report cache (Redis when configured, otherwise in memory).
func newReportService(ctx context.Context, cfg config.Config, deps reportDeps) (*app.ReportService, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	client := newReportsClient(cfg)

	var archive *pgarchive.ReportArchive
	if deps.offline || deps.archive {
		if cfg.Postgres.URL == "" {
			return nil, cleanup, fmt.Errorf("postgres url not configured")
		}
		if deps.archive {
			if err := runMigrationsWithConfig(ctx, cfg); err != nil {
				return nil, cleanup, err
			}
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, pool.Close)
		archive = pgarchive.NewReportArchive(pool)
	}

	var loader memory.ReportLoader = client
	if deps.offline {
		loader = archive
	}

	cacheTTL := config.TTLDuration(cfg.Cache.TTL, 5*time.Minute)
	var reports app.ReportRepository
	if redisClient := newRedisClient(cfg); redisClient != nil {
		closers = append(closers, func() { _ = redisClient.Close() })
		reports = rediscache.NewReportRepository(redisClient, loader, cacheTTL)
	} else {
		reports = memory.NewReportRepository(loader, cacheTTL)
	}

	var archiveDep app.ReportArchive
	if archive != nil {
		archiveDep = archive
	}
	return app.NewReportService(client, reports, client, archiveDep), cleanup, nil
}
