package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"livequiz-client/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ArchivedReport is one row of the archive listing.
type ArchivedReport struct {
	SessionCode string
	QuizTitle   string
	Status      string
	ArchivedAt  time.Time
}

// ReportArchive stores session reports as JSONB so they can be viewed offline.
type ReportArchive struct {
	pool *pgxpool.Pool
}

func NewReportArchive(pool *pgxpool.Pool) *ReportArchive {
	return &ReportArchive{pool: pool}
}

// SaveReport inserts or replaces the archived copy of a report.
func (a *ReportArchive) SaveReport(ctx context.Context, report domain.SessionReport) error {
	if report.SessionCode == "" {
		return errors.New("report has no session code")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = a.pool.Exec(ctx, `
		INSERT INTO session_reports (session_code, quiz_title, status, data, archived_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (session_code) DO UPDATE
		SET quiz_title = EXCLUDED.quiz_title,
		    status = EXCLUDED.status,
		    data = EXCLUDED.data,
		    archived_at = EXCLUDED.archived_at`,
		report.SessionCode, report.QuizTitle, report.Status, data)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (a *ReportArchive) LoadReport(ctx context.Context, sessionCode string) (domain.SessionReport, error) {
	var raw []byte
	err := a.pool.QueryRow(ctx, `SELECT data FROM session_reports WHERE session_code=$1`, sessionCode).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SessionReport{}, fmt.Errorf("%w: %s", domain.ErrReportNotFound, sessionCode)
	}
	if err != nil {
		return domain.SessionReport{}, fmt.Errorf("load report: %w", err)
	}
	var report domain.SessionReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return domain.SessionReport{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return report, nil
}

// ListArchived returns archived reports, most recently archived first.
func (a *ReportArchive) ListArchived(ctx context.Context) ([]ArchivedReport, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT session_code, quiz_title, status, archived_at
		FROM session_reports
		ORDER BY archived_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list archived: %w", err)
	}
	defer rows.Close()

	var out []ArchivedReport
	for rows.Next() {
		var r ArchivedReport
		if err := rows.Scan(&r.SessionCode, &r.QuizTitle, &r.Status, &r.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan archived: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
