package domain

import (
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of a hosted session as reported by the backend.
type SessionStatus string

const (
	StatusWaiting    SessionStatus = "WAITING"
	StatusScheduled  SessionStatus = "SCHEDULED"
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusPaused     SessionStatus = "PAUSED"
	StatusCompleted  SessionStatus = "COMPLETED"
	StatusCancelled  SessionStatus = "CANCELLED"
)

// SessionSummary is one row of the host's session history.
type SessionSummary struct {
	SessionID         string        `json:"sessionId"`
	SessionCode       string        `json:"sessionCode"`
	SessionName       string        `json:"sessionName"`
	QuizTitle         string        `json:"quizTitle"`
	Status            SessionStatus `json:"status"`
	StartTime         Timestamp     `json:"startTime"`
	EndTime           Timestamp     `json:"endTime"`
	TotalParticipants int           `json:"totalParticipants"`
	AverageAccuracy   float64       `json:"averageAccuracy"`
	CompletionRate    float64       `json:"completionRate"`
	HostName          string        `json:"hostName"`
	TotalQuestions    int           `json:"totalQuestions"`
}

// ReportType selects how much analysis the backend includes in a session report.
type ReportType string

const (
	ReportSummary          ReportType = "SUMMARY"
	ReportDetailed         ReportType = "DETAILED"
	ReportParticipantFocus ReportType = "PARTICIPANT_FOCUS"
	ReportQuestionFocus    ReportType = "QUESTION_FOCUS"
	ReportComparison       ReportType = "COMPARISON"
	ReportExport           ReportType = "EXPORT"
)

// ReportOptions are the query flags sent with a report request.
type ReportOptions struct {
	Type                       ReportType
	IncludeDetailedAnswers     bool
	IncludePerformanceInsights bool
	IncludeRecommendations     bool
}

// DetailedReportOptions is what the host dashboard asks for by default.
func DetailedReportOptions() ReportOptions {
	return ReportOptions{
		Type:                       ReportDetailed,
		IncludeDetailedAnswers:     true,
		IncludePerformanceInsights: true,
		IncludeRecommendations:     true,
	}
}

// ExportFormat is the document type produced by the backend export endpoint.
type ExportFormat string

const (
	ExportPDF   ExportFormat = "PDF"
	ExportCSV   ExportFormat = "CSV"
	ExportExcel ExportFormat = "EXCEL"
)

// ParseExportFormat accepts any casing of PDF, CSV or EXCEL.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToUpper(strings.TrimSpace(raw))) {
	case ExportPDF:
		return ExportPDF, nil
	case ExportCSV:
		return ExportCSV, nil
	case ExportExcel:
		return ExportExcel, nil
	}
	return "", ErrUnknownExportFormat
}

// ExportFile is a downloaded export payload.
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// SessionReport is the detailed, read-only report of a single session.
// Percentages are 0-100 floats.
type SessionReport struct {
	SessionID          string              `json:"sessionId"`
	SessionCode        string              `json:"sessionCode"`
	SessionName        string              `json:"sessionName"`
	QuizTitle          string              `json:"quizTitle"`
	HostName           string              `json:"hostName"`
	StartTime          Timestamp           `json:"startTime"`
	EndTime            Timestamp           `json:"endTime"`
	Duration           int                 `json:"duration"` // seconds
	Status             string              `json:"status"`
	Statistics         SessionStatistics   `json:"statistics"`
	QuestionAnalysis   []QuestionAnalysis  `json:"questionAnalysis"`
	ParticipantReports []ParticipantReport `json:"participantReports"`
	Insights           PerformanceInsights `json:"performanceInsights"`
}

type SessionStatistics struct {
	TotalParticipants     int     `json:"totalParticipants"`
	CompletedParticipants int     `json:"completedParticipants"`
	CompletionRate        float64 `json:"completionRate"`
	AverageScore          float64 `json:"averageScore"`
	AverageAccuracy       float64 `json:"averageAccuracy"`
	AverageResponseTime   float64 `json:"averageResponseTime"`
	TotalQuestions        int     `json:"totalQuestions"`
	TotalAnswers          int     `json:"totalAnswers"`
	CorrectAnswers        int     `json:"correctAnswers"`
	IncorrectAnswers      int     `json:"incorrectAnswers"`
	EngagementRate        float64 `json:"engagementRate"`
}

type QuestionAnalysis struct {
	QuestionNumber      int              `json:"questionNumber"`
	QuestionText        string           `json:"questionText"`
	QuestionType        string           `json:"questionType"`
	Difficulty          string           `json:"difficulty"`
	TotalAttempts       int              `json:"totalAttempts"`
	CorrectAttempts     int              `json:"correctAttempts"`
	IncorrectAttempts   int              `json:"incorrectAttempts"`
	AccuracyRate        float64          `json:"accuracyRate"`
	AverageResponseTime float64          `json:"averageResponseTime"`
	Options             []OptionAnalysis `json:"options"`
}

type OptionAnalysis struct {
	OptionText          string  `json:"optionText"`
	IsCorrect           bool    `json:"isCorrect"`
	SelectionCount      int     `json:"selectionCount"`
	SelectionPercentage float64 `json:"selectionPercentage"`
}

type ParticipantReport struct {
	ParticipantID       string             `json:"participantId"`
	Nickname            string             `json:"nickname"`
	AvatarID            string             `json:"avatarId"`
	TotalScore          int                `json:"totalScore"`
	Rank                int                `json:"rank"`
	QuestionsAnswered   int                `json:"questionsAnswered"`
	CorrectAnswers      int                `json:"correctAnswers"`
	IncorrectAnswers    int                `json:"incorrectAnswers"`
	Accuracy            float64            `json:"accuracy"`
	AverageResponseTime float64            `json:"averageResponseTime"`
	CompletionStatus    string             `json:"completionStatus"`
	Performance         PerformanceMetrics `json:"performance"`
}

type PerformanceMetrics struct {
	ScorePercentile    float64 `json:"scorePercentile"`
	AccuracyPercentile float64 `json:"accuracyPercentile"`
	SpeedPercentile    float64 `json:"speedPercentile"`
	ConsistencyScore   float64 `json:"consistencyScore"`
	ImprovementTrend   string  `json:"improvementTrend"`
}

type PerformanceInsights struct {
	Strengths         []string `json:"strengths"`
	Weaknesses        []string `json:"weaknesses"`
	Recommendations   []string `json:"recommendations"`
	DropoffRate       float64  `json:"dropoffRate"`
	EngagementLevel   string   `json:"engagementLevel"`
	DifficultyBalance string   `json:"difficultyBalance"`
}

// Timestamp decodes both zoned (RFC 3339) and zone-less local date-times,
// the latter being what the backend emits for session times.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(time.RFC3339Nano) + `"`), nil
}
