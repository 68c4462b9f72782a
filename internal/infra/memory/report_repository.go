package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"livequiz-client/internal/domain"

	"golang.org/x/sync/singleflight"
)

// ReportLoader fetches a session report from its source (REST backend, archive).
type ReportLoader interface {
	LoadReport(ctx context.Context, sessionCode string) (domain.SessionReport, error)
}

// ReportRepository caches reports with TTL to avoid refetching large payloads
// while the host flips between tabs.
type ReportRepository struct {
	loader ReportLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedReport
}

type cachedReport struct {
	report    domain.SessionReport
	expiresAt time.Time
}

func NewReportRepository(loader ReportLoader, ttl time.Duration) *ReportRepository {
	return &ReportRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedReport),
	}
}

func (r *ReportRepository) GetReport(ctx context.Context, sessionCode string) (domain.SessionReport, error) {
	if report, ok := r.lookup(sessionCode); ok {
		return report, nil
	}

	result, err, _ := r.sf.Do(sessionCode, func() (interface{}, error) {
		if report, ok := r.lookup(sessionCode); ok {
			return report, nil
		}

		report, err := r.loader.LoadReport(ctx, sessionCode)
		if err != nil {
			return domain.SessionReport{}, err
		}

		r.mu.Lock()
		r.cache[sessionCode] = cachedReport{
			report:    report,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return report, nil
	})
	if err != nil {
		return domain.SessionReport{}, err
	}
	return result.(domain.SessionReport), nil
}

// Invalidate drops a cached report so the next read hits the loader.
func (r *ReportRepository) Invalidate(_ context.Context, sessionCode string) error {
	r.mu.Lock()
	delete(r.cache, sessionCode)
	r.mu.Unlock()
	return nil
}

func (r *ReportRepository) lookup(sessionCode string) (domain.SessionReport, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[sessionCode]; ok && entry.expiresAt.After(now) {
		return entry.report, true
	}
	return domain.SessionReport{}, false
}

func (r *ReportRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
