package rest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"livequiz-client/internal/domain"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestListMySessionsSendsBearerToken(t *testing.T) {
	var seenAuth, seenPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		seenPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"sessionCode":"ABC123","quizTitle":"Go Basics","status":"COMPLETED","startTime":"2024-05-01T10:00:00","totalParticipants":3,"averageAccuracy":66.5}]`))
	}))
	defer srv.Close()

	client := NewReportsClient(srv.URL, srv.Client(), staticToken("tok"))
	sessions, err := client.ListMySessions(context.Background())
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if seenAuth != "Bearer tok" {
		t.Fatalf("expected bearer header, got %q", seenAuth)
	}
	if seenPath != "/api/v1/reports-history/my-sessions" {
		t.Fatalf("unexpected path %q", seenPath)
	}
	if len(sessions) != 1 || sessions[0].SessionCode != "ABC123" || sessions[0].Status != domain.StatusCompleted {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
	if sessions[0].StartTime.Hour() != 10 {
		t.Fatalf("expected zone-less start time parsed, got %v", sessions[0].StartTime)
	}
}

func TestGetSessionReportSendsDetailedFlags(t *testing.T) {
	var query map[string]string
	client := NewReportsClient("http://backend", &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		query = map[string]string{}
		for key := range r.URL.Query() {
			query[key] = r.URL.Query().Get(key)
		}
		if r.URL.Path != "/api/v1/reports/session/ABC123" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{"sessionCode":"ABC123","quizTitle":"Go Basics","performanceInsights":{"strengths":["fast"]}}`), nil
	})}, nil)

	report, err := client.LoadReport(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("load report: %v", err)
	}
	want := map[string]string{
		"reportType":                 "DETAILED",
		"includeDetailedAnswers":     "true",
		"includePerformanceInsights": "true",
		"includeRecommendations":     "true",
	}
	for key, value := range want {
		if query[key] != value {
			t.Fatalf("query %s=%q, want %q", key, query[key], value)
		}
	}
	if report.QuizTitle != "Go Basics" || len(report.Insights.Strengths) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestErrorsCarryServerMessageOrFallback(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "message field", body: `{"message":"Session not yours"}`, want: "Session not yours"},
		{name: "error field", body: `{"error":"Forbidden"}`, want: "Forbidden"},
		{name: "no body", body: ``, want: "Failed to load sessions"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := NewReportsClient("http://backend", &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusForbidden, tc.body), nil
			})}, nil)

			_, err := client.ListMySessions(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.StatusCode != http.StatusForbidden || apiErr.Message != tc.want {
				t.Fatalf("unexpected error %+v", apiErr)
			}
		})
	}
}

func TestReportNotFoundMapsToSentinel(t *testing.T) {
	client := NewReportsClient("http://backend", &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, `{"message":"nope"}`), nil
	})}, nil)

	if _, err := client.LoadReport(context.Background(), "GONE"); !errors.Is(err, domain.ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}

func TestTransportFailureIsServiceUnavailable(t *testing.T) {
	client := NewReportsClient("http://backend", &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}, nil)

	if _, err := client.ListMySessions(context.Background()); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestTokenErrorStopsRequest(t *testing.T) {
	called := false
	client := NewReportsClient("http://backend", &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		called = true
		return jsonResponse(http.StatusOK, `[]`), nil
	})}, failingToken{})

	if _, err := client.ListMySessions(context.Background()); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected token error, got %v", err)
	}
	if called {
		t.Fatalf("request should not be sent without a token")
	}
}

type failingToken struct{}

func (failingToken) Token() (string, error) { return "", domain.ErrTokenExpired }

func TestExportNamesFile(t *testing.T) {
	cases := []struct {
		name        string
		disposition string
		format      domain.ExportFormat
		want        string
	}{
		{name: "server name", disposition: `attachment; filename="quiz-ABC123.pdf"`, format: domain.ExportPDF, want: "quiz-ABC123.pdf"},
		{name: "fallback", format: domain.ExportExcel, want: "session_report_ABC123.excel"},
		{name: "path in name", disposition: `attachment; filename="../etc/passwd"`, format: domain.ExportCSV, want: "session_report_ABC123.csv"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seenFormat string
			client := NewReportsClient("http://backend", &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
				seenFormat = r.URL.Query().Get("format")
				if r.URL.Path != "/api/v1/reports/session/ABC123/export" {
					t.Errorf("unexpected path %q", r.URL.Path)
				}
				resp := &http.Response{
					StatusCode: http.StatusOK,
					Body:       io.NopCloser(bytes.NewReader([]byte("binary"))),
					Header:     http.Header{"Content-Type": []string{"application/octet-stream"}},
				}
				if tc.disposition != "" {
					resp.Header.Set("Content-Disposition", tc.disposition)
				}
				return resp, nil
			})}, nil)

			file, err := client.Export(context.Background(), "ABC123", tc.format)
			if err != nil {
				t.Fatalf("export: %v", err)
			}
			if seenFormat != string(tc.format) {
				t.Fatalf("format query %q, want %q", seenFormat, tc.format)
			}
			if file.Name != tc.want || string(file.Data) != "binary" {
				t.Fatalf("unexpected file %+v", file)
			}
		})
	}
}

func TestExportFailureUsesFallbackMessage(t *testing.T) {
	client := NewReportsClient("http://backend", &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `not-json`), nil
	})}, nil)

	_, err := client.Export(context.Background(), "ABC123", domain.ExportPDF)
	if err == nil || err.Error() != "Failed to export report" {
		t.Fatalf("expected fallback message, got %v", err)
	}
}
