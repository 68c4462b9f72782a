package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"livequiz-client/internal/domain"
)

const (
	defaultBaseURL = "http://localhost:9999"

	mySessionsPath = "/api/v1/reports-history/my-sessions"
	reportPath     = "/api/v1/reports/session/"
)

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token() (string, error)
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// ReportsClient calls the reporting endpoints of the quiz backend.
type ReportsClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

func NewReportsClient(baseURL string, httpClient *http.Client, tokens TokenSource) *ReportsClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ReportsClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
	}
}

// ListMySessions returns the host's session history.
func (c *ReportsClient) ListMySessions(ctx context.Context) ([]domain.SessionSummary, error) {
	var sessions []domain.SessionSummary
	if err := c.doJSON(ctx, mySessionsPath, nil, &sessions, "Failed to load sessions"); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSessionReport fetches the detailed report of one session.
func (c *ReportsClient) GetSessionReport(ctx context.Context, sessionCode string, opts domain.ReportOptions) (domain.SessionReport, error) {
	if strings.TrimSpace(sessionCode) == "" {
		return domain.SessionReport{}, errors.New("session code is required")
	}
	if opts.Type == "" {
		opts.Type = domain.ReportDetailed
	}

	query := url.Values{}
	query.Set("reportType", string(opts.Type))
	query.Set("includeDetailedAnswers", strconv.FormatBool(opts.IncludeDetailedAnswers))
	query.Set("includePerformanceInsights", strconv.FormatBool(opts.IncludePerformanceInsights))
	query.Set("includeRecommendations", strconv.FormatBool(opts.IncludeRecommendations))

	var report domain.SessionReport
	err := c.doJSON(ctx, reportPath+url.PathEscape(sessionCode), query, &report, "Failed to load session report")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return domain.SessionReport{}, fmt.Errorf("%w: %s", domain.ErrReportNotFound, sessionCode)
		}
		return domain.SessionReport{}, err
	}
	return report, nil
}

// LoadReport fetches the detailed report the host dashboard shows.
func (c *ReportsClient) LoadReport(ctx context.Context, sessionCode string) (domain.SessionReport, error) {
	return c.GetSessionReport(ctx, sessionCode, domain.DetailedReportOptions())
}

// Export downloads a generated report document.
func (c *ReportsClient) Export(ctx context.Context, sessionCode string, format domain.ExportFormat) (domain.ExportFile, error) {
	if strings.TrimSpace(sessionCode) == "" {
		return domain.ExportFile{}, errors.New("session code is required")
	}
	query := url.Values{}
	query.Set("format", string(format))
	query.Set("reportType", string(domain.ReportDetailed))

	response, err := c.do(ctx, reportPath+url.PathEscape(sessionCode)+"/export", query)
	if err != nil {
		return domain.ExportFile{}, err
	}
	defer response.Body.Close()

	if err := checkStatus(response, "Failed to export report"); err != nil {
		return domain.ExportFile{}, err
	}
	data, err := io.ReadAll(response.Body)
	if err != nil {
		return domain.ExportFile{}, fmt.Errorf("read export: %w", err)
	}
	return domain.ExportFile{
		Name:        exportFileName(response.Header.Get("Content-Disposition"), sessionCode, format),
		ContentType: response.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (c *ReportsClient) doJSON(ctx context.Context, path string, query url.Values, responseBody any, fallback string) error {
	response, err := c.do(ctx, path, query)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if err := checkStatus(response, fallback); err != nil {
		return err
	}
	if responseBody == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(responseBody); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *ReportsClient) do(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, err
		}
		request.Header.Set("Authorization", "Bearer "+token)
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	return response, nil
}

func checkStatus(response *http.Response, fallback string) error {
	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	apiErr := APIError{StatusCode: response.StatusCode, Message: fallback}
	var payload errorResponse
	if err := json.NewDecoder(io.LimitReader(response.Body, 64<<10)).Decode(&payload); err == nil {
		switch {
		case strings.TrimSpace(payload.Message) != "":
			apiErr.Message = payload.Message
		case strings.TrimSpace(payload.Error) != "":
			apiErr.Message = payload.Error
		}
	}
	return &apiErr
}

func exportFileName(disposition, sessionCode string, format domain.ExportFormat) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := strings.TrimSpace(params["filename"]); name != "" && !strings.ContainsAny(name, `/\`) {
				return name
			}
		}
	}
	return fmt.Sprintf("session_report_%s.%s", sessionCode, strings.ToLower(string(format)))
}
