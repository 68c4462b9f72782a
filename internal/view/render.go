package view

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"livequiz-client/internal/app"
	"livequiz-client/internal/domain"
)

// Tab selects which part of a session report is rendered.
type Tab string

const (
	TabOverview     Tab = "overview"
	TabQuestions    Tab = "questions"
	TabParticipants Tab = "participants"
	TabInsights     Tab = "insights"
)

func ParseTab(raw string) (Tab, error) {
	switch t := Tab(strings.ToLower(strings.TrimSpace(raw))); t {
	case "":
		return TabOverview, nil
	case TabOverview, TabQuestions, TabParticipants, TabInsights:
		return t, nil
	}
	return "", fmt.Errorf("unknown tab %q", raw)
}

// StatusLabel is the human label for a session status.
func StatusLabel(status domain.SessionStatus) string {
	switch status {
	case domain.StatusInProgress:
		return "Running"
	case domain.StatusCompleted:
		return "Completed"
	case domain.StatusScheduled:
		return "Scheduled"
	case domain.StatusPaused:
		return "Paused"
	case domain.StatusWaiting:
		return "Waiting"
	}
	return string(status)
}

type Grade string

const (
	GradeGood Grade = "good"
	GradeFair Grade = "fair"
	GradePoor Grade = "poor"
)

// AccuracyGrade bands a 0-100 accuracy: 70 and up is good, 40 and up fair.
func AccuracyGrade(accuracy float64) Grade {
	switch {
	case accuracy >= 70:
		return GradeGood
	case accuracy >= 40:
		return GradeFair
	}
	return GradePoor
}

// Bucket is one bar of the score distribution chart.
type Bucket struct {
	Label string
	Max   float64
	Count int
}

// ScoreDistribution counts participants per accuracy band. A value belongs
// to the first band whose upper bound it does not exceed.
func ScoreDistribution(participants []domain.ParticipantReport) []Bucket {
	buckets := []Bucket{
		{Label: "0-20%", Max: 20},
		{Label: "21-40%", Max: 40},
		{Label: "41-60%", Max: 60},
		{Label: "61-80%", Max: 80},
		{Label: "81-100%", Max: 100},
	}
	for _, p := range participants {
		if p.Accuracy < 0 || p.Accuracy > 100 {
			continue
		}
		for i := range buckets {
			if p.Accuracy <= buckets[i].Max {
				buckets[i].Count++
				break
			}
		}
	}
	return buckets
}

// FormatDuration renders seconds as "Xm Ys".
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}

type ParticipantSort string

const (
	SortByRank     ParticipantSort = "rank"
	SortByScore    ParticipantSort = "score"
	SortByAccuracy ParticipantSort = "accuracy"
)

// SortParticipants returns a copy ordered by rank ascending, or score or
// accuracy descending.
func SortParticipants(participants []domain.ParticipantReport, by ParticipantSort) []domain.ParticipantReport {
	out := append([]domain.ParticipantReport(nil), participants...)
	sort.SliceStable(out, func(i, j int) bool {
		switch by {
		case SortByScore:
			return out[i].TotalScore > out[j].TotalScore
		case SortByAccuracy:
			return out[i].Accuracy > out[j].Accuracy
		default:
			return out[i].Rank < out[j].Rank
		}
	})
	return out
}

// RenderSessions writes the host's session history table.
func RenderSessions(w io.Writer, list app.SessionList) error {
	var filters []string
	for _, f := range app.Filters {
		filters = append(filters, fmt.Sprintf("%s (%d)", f, list.Counts[f]))
	}
	fmt.Fprintln(w, strings.Join(filters, "  "))
	fmt.Fprintf(w, "Showing %d of %d sessions\n\n", len(list.Sessions), list.Total)

	if len(list.Sessions) == 0 {
		fmt.Fprintln(w, "No sessions found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tQUIZ\tSESSION\tSTATUS\tSTARTED\tPLAYERS\tACCURACY\tREPORT")
	for _, s := range list.Sessions {
		report := "-"
		if app.Viewable(s) {
			report = "View Report"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%.0f%% (%s)\t%s\n",
			s.SessionCode, s.QuizTitle, s.SessionName, StatusLabel(s.Status),
			formatTime(s.StartTime), s.TotalParticipants, s.AverageAccuracy, AccuracyGrade(s.AverageAccuracy), report)
	}
	return tw.Flush()
}

// RenderReport writes one tab of a session report.
func RenderReport(w io.Writer, report domain.SessionReport, tab Tab) error {
	fmt.Fprintf(w, "%s  [%s]\n", report.QuizTitle, report.SessionCode)
	if report.SessionName != "" {
		fmt.Fprintf(w, "%s, hosted by %s\n", report.SessionName, report.HostName)
	}
	fmt.Fprintln(w)

	switch tab {
	case TabOverview, "":
		return renderOverview(w, report)
	case TabQuestions:
		return renderQuestions(w, report.QuestionAnalysis)
	case TabParticipants:
		return renderParticipants(w, report.ParticipantReports)
	case TabInsights:
		return renderInsights(w, report.Insights)
	}
	return fmt.Errorf("unknown tab %q", tab)
}

func renderOverview(w io.Writer, report domain.SessionReport) error {
	stats := report.Statistics
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total Participants\t%d\n", stats.TotalParticipants)
	fmt.Fprintf(tw, "Completion Rate\t%.1f%%\n", stats.CompletionRate)
	fmt.Fprintf(tw, "Average Accuracy\t%.1f%%\n", stats.AverageAccuracy)
	fmt.Fprintf(tw, "Avg Response Time\t%.1fs\n", stats.AverageResponseTime)
	fmt.Fprintf(tw, "Total Questions\t%d\n", stats.TotalQuestions)
	fmt.Fprintf(tw, "Total Answers\t%d\n", stats.TotalAnswers)
	fmt.Fprintf(tw, "Correct Answers\t%d\n", stats.CorrectAnswers)
	fmt.Fprintf(tw, "Incorrect Answers\t%d\n", stats.IncorrectAnswers)
	fmt.Fprintf(tw, "Started\t%s\n", formatTime(report.StartTime))
	fmt.Fprintf(tw, "Ended\t%s\n", formatTime(report.EndTime))
	fmt.Fprintf(tw, "Duration\t%s\n", FormatDuration(report.Duration))
	fmt.Fprintf(tw, "Status\t%s\n", report.Status)
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nScore Distribution")
	buckets := ScoreDistribution(report.ParticipantReports)
	maxCount := 0
	for _, b := range buckets {
		if b.Count > maxCount {
			maxCount = b.Count
		}
	}
	for _, b := range buckets {
		bar := ""
		if maxCount > 0 {
			bar = strings.Repeat("#", b.Count*20/maxCount)
		}
		fmt.Fprintf(w, "%-8s %-20s %d\n", b.Label, bar, b.Count)
	}
	return nil
}

func renderQuestions(w io.Writer, questions []domain.QuestionAnalysis) error {
	if len(questions) == 0 {
		fmt.Fprintln(w, "No question analysis available")
		return nil
	}
	for _, q := range questions {
		fmt.Fprintf(w, "Q%d  %s  %s  accuracy %.0f%% (%s)\n", q.QuestionNumber, q.Difficulty, q.QuestionType, q.AccuracyRate, AccuracyGrade(q.AccuracyRate))
		fmt.Fprintf(w, "    %s\n", q.QuestionText)
		fmt.Fprintf(w, "    attempts %d, correct %d, incorrect %d\n", q.TotalAttempts, q.CorrectAttempts, q.IncorrectAttempts)
		for i, opt := range q.Options {
			marker := ""
			if opt.IsCorrect {
				marker = "  correct"
			}
			fmt.Fprintf(w, "    %c. %s  %d (%.1f%%)%s\n", 'A'+i, opt.OptionText, opt.SelectionCount, opt.SelectionPercentage, marker)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func renderParticipants(w io.Writer, participants []domain.ParticipantReport) error {
	fmt.Fprintf(w, "%d Participants\n\n", len(participants))
	if len(participants) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tNICKNAME\tSCORE\tACCURACY\tCORRECT\tAVG TIME\tSTATUS")
	for _, p := range participants {
		fmt.Fprintf(tw, "#%d\t%s\t%d\t%.1f%%\t%d/%d\t%.1fs\t%s\n",
			p.Rank, p.Nickname, p.TotalScore, p.Accuracy, p.CorrectAnswers, p.QuestionsAnswered, p.AverageResponseTime, p.CompletionStatus)
	}
	return tw.Flush()
}

func renderInsights(w io.Writer, insights domain.PerformanceInsights) error {
	section := func(title string, items []string) {
		fmt.Fprintln(w, title)
		if len(items) == 0 {
			fmt.Fprintln(w, "  (none)")
		}
		for _, item := range items {
			fmt.Fprintf(w, "  - %s\n", item)
		}
		fmt.Fprintln(w)
	}
	section("Strengths", insights.Strengths)
	section("Areas for Improvement", insights.Weaknesses)
	section("Recommendations", insights.Recommendations)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Retention Rate\t%.1f%%\n", 100-insights.DropoffRate)
	fmt.Fprintf(tw, "Engagement Level\t%s\n", insights.EngagementLevel)
	fmt.Fprintf(tw, "Difficulty Balance\t%s\n", insights.DifficultyBalance)
	return tw.Flush()
}

// RenderParticipant writes the participant screen for one view snapshot.
func RenderParticipant(w io.Writer, v app.ParticipantView) {
	if v.Ended {
		fmt.Fprintln(w)
		msg := v.Completion.Message
		if msg == "" {
			msg = "Quiz completed"
		}
		fmt.Fprintln(w, msg)
		if v.Completion.FinalScore > 0 || v.Completion.FinalRank > 0 {
			fmt.Fprintf(w, "Final score %d, rank #%d\n", v.Completion.FinalScore, v.Completion.FinalRank)
		}
		return
	}
	if v.Question == nil {
		fmt.Fprintln(w, "Waiting for the host to start the next question...")
		return
	}

	q := v.Question
	fmt.Fprintln(w)
	if q.Total > 0 {
		fmt.Fprintf(w, "Question %d of %d", q.Number, q.Total)
		if q.Points > 0 {
			fmt.Fprintf(w, "  (%d pts)", q.Points)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%s\n\n", q.Text)
	for i, opt := range q.Options {
		marker := " "
		if opt.ID == v.Selection {
			marker = ">"
		}
		fmt.Fprintf(w, "%s %c. %s\n", marker, 'A'+i, opt.Text)
	}
	fmt.Fprintln(w)

	if v.Feedback.Message != "" {
		fmt.Fprintln(w, v.Feedback.Message)
	}
	if v.Score != nil {
		fmt.Fprintf(w, "Score %d (+%d), rank #%d\n", v.Score.TotalScore, v.Score.PointsEarned, v.Score.Rank)
	}
	if v.Interactive && len(q.Options) > 0 {
		fmt.Fprintf(w, "Enter a letter A-%c: ", 'A'+len(q.Options)-1)
	} else if !v.Interactive {
		fmt.Fprintln(w, "[answers locked]")
	}
}

// OptionForLetter maps "a".."z" to the option at that position.
func OptionForLetter(q *domain.Question, input string) (string, bool) {
	input = strings.ToUpper(strings.TrimSpace(input))
	if q == nil || len(input) != 1 {
		return "", false
	}
	idx := int(input[0]) - 'A'
	if idx < 0 || idx >= len(q.Options) {
		return "", false
	}
	return q.Options[idx].ID, true
}

// ErrorBanner writes an inline error line.
func ErrorBanner(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

func formatTime(ts domain.Timestamp) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format("2006-01-02 15:04")
}
