package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"text/tabwriter"

	"livequiz-client/internal/app"
	"livequiz-client/internal/config"
	"livequiz-client/internal/domain"
	pgarchive "livequiz-client/internal/infra/postgres"
	"livequiz-client/internal/view"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

// NewSessionsCmd lists the host's sessions.
func NewSessionsCmd(configPath *string) *cobra.Command {
	var filter, search, sortBy string
	var ascending bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List my hosted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := app.ParseSessionFilter(filter)
			if err != nil {
				return err
			}
			s, err := app.ParseSessionSort(sortBy)
			if err != nil {
				return err
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			svc, cleanup, err := newReportService(cmd.Context(), cfg, reportDeps{})
			defer cleanup()
			if err != nil {
				return err
			}

			list, err := svc.Sessions(cmd.Context(), app.SessionQuery{Filter: f, Search: search, SortBy: s, Desc: !ascending})
			if err != nil {
				view.ErrorBanner(cmd.ErrOrStderr(), err)
				return err
			}
			return view.RenderSessions(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "ALL", "ALL, RUNNING, SCHEDULED, COMPLETED or PAUSED")
	cmd.Flags().StringVar(&search, "search", "", "match quiz title, session name or code")
	cmd.Flags().StringVar(&sortBy, "sort", "date", "date, participants or accuracy")
	cmd.Flags().BoolVar(&ascending, "asc", false, "sort ascending")
	return cmd
}

// NewReportCmd renders one tab of a session report.
func NewReportCmd(configPath *string) *cobra.Command {
	var tab, participantSort string
	var refresh, offline bool

	cmd := &cobra.Command{
		Use:   "report <session-code>",
		Short: "Show the detailed report of a completed session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := view.ParseTab(tab)
			if err != nil {
				return err
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			svc, cleanup, err := newReportService(cmd.Context(), cfg, reportDeps{offline: offline})
			defer cleanup()
			if err != nil {
				return err
			}

			report, err := svc.Report(cmd.Context(), args[0], refresh)
			if err != nil {
				view.ErrorBanner(cmd.ErrOrStderr(), err)
				return err
			}
			report.ParticipantReports = view.SortParticipants(report.ParticipantReports, view.ParticipantSort(participantSort))
			return view.RenderReport(cmd.OutOrStdout(), report, t)
		},
	}
	cmd.Flags().StringVar(&tab, "tab", "overview", "overview, questions, participants or insights")
	cmd.Flags().StringVar(&participantSort, "sort", "rank", "participants tab order: rank, score or accuracy")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the report cache")
	cmd.Flags().BoolVar(&offline, "offline", false, "read the report from the Postgres archive")
	return cmd
}

// NewExportCmd downloads a report export.
func NewExportCmd(configPath *string) *cobra.Command {
	var format, outDir string

	cmd := &cobra.Command{
		Use:   "export <session-code>",
		Short: "Download a PDF, CSV or EXCEL export of a session report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := domain.ParseExportFormat(format)
			if err != nil {
				return err
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			svc, cleanup, err := newReportService(cmd.Context(), cfg, reportDeps{})
			defer cleanup()
			if err != nil {
				return err
			}

			file, err := svc.Export(cmd.Context(), args[0], f)
			if err != nil {
				view.ErrorBanner(cmd.ErrOrStderr(), err)
				return err
			}
			path := filepath.Join(outDir, file.Name)
			if err := os.WriteFile(path, file.Data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			log.Printf("export saved to %s (%d bytes)", path, len(file.Data))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "PDF", "PDF, CSV or EXCEL")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory to write the export into")
	return cmd
}

// NewArchiveCmd stores a fetched report in Postgres, or lists the archive.
func NewArchiveCmd(configPath *string) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "archive [session-code]",
		Short: "Store a session report in the Postgres archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if list {
				return listArchive(cmd.Context(), cfg, cmd.OutOrStdout())
			}
			if len(args) != 1 {
				return fmt.Errorf("session code is required")
			}

			svc, cleanup, err := newReportService(cmd.Context(), cfg, reportDeps{archive: true})
			defer cleanup()
			if err != nil {
				return err
			}

			report, err := svc.Archive(cmd.Context(), args[0])
			if err != nil {
				view.ErrorBanner(cmd.ErrOrStderr(), err)
				return err
			}
			log.Printf("archived report %s (%s)", report.SessionCode, report.QuizTitle)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list archived reports")
	return cmd
}

func listArchive(ctx context.Context, cfg config.Config, out io.Writer) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	archived, err := pgarchive.NewReportArchive(pool).ListArchived(ctx)
	if err != nil {
		return err
	}
	if len(archived) == 0 {
		fmt.Fprintln(out, "No archived reports")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tQUIZ\tSTATUS\tARCHIVED")
	for _, r := range archived {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.SessionCode, r.QuizTitle, r.Status, r.ArchivedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
