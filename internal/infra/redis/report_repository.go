package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"livequiz-client/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ReportLoader fetches a session report from its source (REST backend, archive).
type ReportLoader interface {
	LoadReport(ctx context.Context, sessionCode string) (domain.SessionReport, error)
}

// ReportRepository caches whole reports in Redis as JSON and falls back to a
// loader on cache miss. Reports are stored as:
//
//	SET livequiz:report:{sessionCode} <json> EX <ttl+jitter>
type ReportRepository struct {
	client *redis.Client
	loader ReportLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewReportRepository(client *redis.Client, loader ReportLoader, ttl time.Duration) *ReportRepository {
	return &ReportRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ReportRepository) GetReport(ctx context.Context, sessionCode string) (domain.SessionReport, error) {
	if report, ok := r.cached(ctx, sessionCode); ok {
		return report, nil
	}

	result, err, _ := r.sf.Do(sessionCode, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if report, ok := r.cached(ctx, sessionCode); ok {
			return report, nil
		}

		report, err := r.loader.LoadReport(ctx, sessionCode)
		if err != nil {
			return domain.SessionReport{}, err
		}

		data, err := json.Marshal(report)
		if err != nil {
			return domain.SessionReport{}, fmt.Errorf("encode report: %w", err)
		}
		if err := r.client.Set(ctx, r.key(sessionCode), data, r.ttlWithJitter()).Err(); err != nil {
			log.Printf("report cache write for %s failed: %v", sessionCode, err)
		}
		return report, nil
	})
	if err != nil {
		return domain.SessionReport{}, err
	}
	return result.(domain.SessionReport), nil
}

// Invalidate drops a cached report so the next read hits the loader.
func (r *ReportRepository) Invalidate(ctx context.Context, sessionCode string) error {
	return r.client.Del(ctx, r.key(sessionCode)).Err()
}

func (r *ReportRepository) cached(ctx context.Context, sessionCode string) (domain.SessionReport, bool) {
	raw, err := r.client.Get(ctx, r.key(sessionCode)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("report cache read for %s failed: %v", sessionCode, err)
		}
		return domain.SessionReport{}, false
	}
	var report domain.SessionReport
	if err := json.Unmarshal(raw, &report); err != nil {
		log.Printf("discarding corrupt cached report %s: %v", sessionCode, err)
		return domain.SessionReport{}, false
	}
	return report, true
}

func (r *ReportRepository) key(sessionCode string) string {
	return "livequiz:report:" + sessionCode
}

func (r *ReportRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
