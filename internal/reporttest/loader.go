// Package reporttest provides report fixtures for tests.
package reporttest

import (
	"context"
	"fmt"

	"livequiz-client/internal/domain"
)

// StaticLoader serves reports from a fixed map.
type StaticLoader struct {
	reports map[string]domain.SessionReport
}

func NewStaticLoader(reports map[string]domain.SessionReport) *StaticLoader {
	return &StaticLoader{reports: reports}
}

func (l *StaticLoader) LoadReport(_ context.Context, sessionCode string) (domain.SessionReport, error) {
	if report, ok := l.reports[sessionCode]; ok {
		return report, nil
	}
	return domain.SessionReport{}, fmt.Errorf("%w: %s", domain.ErrReportNotFound, sessionCode)
}
