package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"livequiz-client/internal/domain"
)

// SessionFilter narrows the host's session history by status.
type SessionFilter string

const (
	FilterAll       SessionFilter = "ALL"
	FilterRunning   SessionFilter = "RUNNING"
	FilterScheduled SessionFilter = "SCHEDULED"
	FilterCompleted SessionFilter = "COMPLETED"
	FilterPaused    SessionFilter = "PAUSED"
)

// Filters lists the filters in display order.
var Filters = []SessionFilter{FilterAll, FilterRunning, FilterScheduled, FilterCompleted, FilterPaused}

func ParseSessionFilter(raw string) (SessionFilter, error) {
	if strings.TrimSpace(raw) == "" {
		return FilterAll, nil
	}
	f := SessionFilter(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range Filters {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown filter %q", raw)
}

// Matches reports whether a session status passes the filter.
// RUNNING selects IN_PROGRESS sessions.
func (f SessionFilter) Matches(status domain.SessionStatus) bool {
	switch f {
	case FilterAll, "":
		return true
	case FilterRunning:
		return status == domain.StatusInProgress
	case FilterScheduled:
		return status == domain.StatusScheduled
	case FilterCompleted:
		return status == domain.StatusCompleted
	case FilterPaused:
		return status == domain.StatusPaused
	}
	return false
}

// SessionSort is the column the session list is ordered by.
type SessionSort string

const (
	SortByDate         SessionSort = "date"
	SortByParticipants SessionSort = "participants"
	SortByAccuracy     SessionSort = "accuracy"
)

func ParseSessionSort(raw string) (SessionSort, error) {
	switch s := SessionSort(strings.ToLower(strings.TrimSpace(raw))); s {
	case "":
		return SortByDate, nil
	case SortByDate, SortByParticipants, SortByAccuracy:
		return s, nil
	}
	return "", fmt.Errorf("unknown sort %q", raw)
}

type SessionQuery struct {
	Filter SessionFilter
	Search string
	SortBy SessionSort
	Desc   bool
}

// SessionList is the filtered page plus per-filter counts over the whole history.
type SessionList struct {
	Sessions []domain.SessionSummary
	Total    int
	Counts   map[SessionFilter]int
}

// SessionLister fetches the host's session history.
type SessionLister interface {
	ListMySessions(ctx context.Context) ([]domain.SessionSummary, error)
}

// ReportRepository returns reports, usually through a cache.
type ReportRepository interface {
	GetReport(ctx context.Context, sessionCode string) (domain.SessionReport, error)
	Invalidate(ctx context.Context, sessionCode string) error
}

type ReportExporter interface {
	Export(ctx context.Context, sessionCode string, format domain.ExportFormat) (domain.ExportFile, error)
}

// ReportArchive persists reports for offline viewing.
type ReportArchive interface {
	SaveReport(ctx context.Context, report domain.SessionReport) error
}

// ReportService contains the host reporting use cases.
type ReportService struct {
	sessions SessionLister
	reports  ReportRepository
	exporter ReportExporter
	archive  ReportArchive
}

// NewReportService wires the reporting use cases. Any dependency may be nil
// when the calling command does not need it.
func NewReportService(sessions SessionLister, reports ReportRepository, exporter ReportExporter, archive ReportArchive) *ReportService {
	return &ReportService{sessions: sessions, reports: reports, exporter: exporter, archive: archive}
}

func (s *ReportService) Sessions(ctx context.Context, q SessionQuery) (SessionList, error) {
	if s.sessions == nil {
		return SessionList{}, errors.New("session history not configured")
	}
	all, err := s.sessions.ListMySessions(ctx)
	if err != nil {
		return SessionList{}, err
	}

	counts := make(map[SessionFilter]int, len(Filters))
	for _, f := range Filters {
		for _, session := range all {
			if f.Matches(session.Status) {
				counts[f]++
			}
		}
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	filtered := make([]domain.SessionSummary, 0, len(all))
	for _, session := range all {
		if !q.Filter.Matches(session.Status) {
			continue
		}
		if search != "" && !matchesSearch(session, search) {
			continue
		}
		filtered = append(filtered, session)
	}

	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = SortByDate
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		if q.Desc {
			a, b = b, a
		}
		switch sortBy {
		case SortByParticipants:
			return a.TotalParticipants < b.TotalParticipants
		case SortByAccuracy:
			return a.AverageAccuracy < b.AverageAccuracy
		default:
			return a.StartTime.Before(b.StartTime.Time)
		}
	})

	return SessionList{Sessions: filtered, Total: len(all), Counts: counts}, nil
}

func matchesSearch(session domain.SessionSummary, query string) bool {
	return strings.Contains(strings.ToLower(session.QuizTitle), query) ||
		strings.Contains(strings.ToLower(session.SessionName), query) ||
		strings.Contains(strings.ToLower(session.SessionCode), query)
}

// Viewable reports whether a session in the history offers a detailed report.
func Viewable(session domain.SessionSummary) bool {
	return session.Status == domain.StatusCompleted
}

// Report returns a session report, dropping any cached copy first when refresh is set.
func (s *ReportService) Report(ctx context.Context, sessionCode string, refresh bool) (domain.SessionReport, error) {
	if s.reports == nil {
		return domain.SessionReport{}, errors.New("report source not configured")
	}
	sessionCode = strings.TrimSpace(sessionCode)
	if sessionCode == "" {
		return domain.SessionReport{}, errors.New("session code is required")
	}
	if refresh {
		if err := s.reports.Invalidate(ctx, sessionCode); err != nil {
			return domain.SessionReport{}, fmt.Errorf("invalidate %s: %w", sessionCode, err)
		}
	}
	return s.reports.GetReport(ctx, sessionCode)
}

func (s *ReportService) Export(ctx context.Context, sessionCode string, format domain.ExportFormat) (domain.ExportFile, error) {
	if s.exporter == nil {
		return domain.ExportFile{}, errors.New("export not configured")
	}
	return s.exporter.Export(ctx, strings.TrimSpace(sessionCode), format)
}

// Archive fetches a report and stores it in the archive.
func (s *ReportService) Archive(ctx context.Context, sessionCode string) (domain.SessionReport, error) {
	if s.archive == nil {
		return domain.SessionReport{}, errors.New("archive not configured")
	}
	report, err := s.Report(ctx, sessionCode, true)
	if err != nil {
		return domain.SessionReport{}, err
	}
	if report.SessionCode == "" {
		report.SessionCode = strings.TrimSpace(sessionCode)
	}
	if err := s.archive.SaveReport(ctx, report); err != nil {
		return domain.SessionReport{}, fmt.Errorf("archive %s: %w", sessionCode, err)
	}
	return report, nil
}
