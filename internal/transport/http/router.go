package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"livequiz-client/internal/app"
	"livequiz-client/internal/auth"
	"livequiz-client/internal/domain"

	"github.com/gorilla/mux"
)

const maxEventBody = 1 << 20

// NewRouter exposes the relay WebSocket, an HTTP ingress for backend-pushed
// events and a health check.
func NewRouter(relay *app.RelayService, verifier *auth.Verifier) *mux.Router {
	ws := NewWSHandler(relay, verifier)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws", ws.ServeWS)
	r.Handle("/sessions/{code}/events/{kind}", requireToken(verifier, publishHandler(relay))).Methods(http.MethodPost)
	return r
}

type publishResponse struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
}

func publishHandler(relay *app.RelayService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		code := strings.TrimSpace(vars["code"])
		kind := domain.EventKind(strings.ReplaceAll(vars["kind"], "-", "_"))
		if code == "" || !kind.Valid() {
			writeError(w, http.StatusBadRequest, "unknown event kind")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
		if err != nil || !json.Valid(body) {
			writeError(w, http.StatusBadRequest, "body must be a JSON payload")
			return
		}

		ev, err := relay.PublishKind(r.Context(), code, kind, body)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, app.ErrInvalidTopic) || errors.Is(err, domain.ErrUnknownEventKind) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}
		topic, _ := domain.TopicForKind(code, kind)
		writeJSON(w, http.StatusAccepted, publishResponse{ID: ev.ID, Topic: topic})
	})
}

func requireToken(verifier *auth.Verifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if verifier.Enabled() {
			if _, err := verifier.Verify(auth.BearerToken(r)); err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
