package domain

import "errors"

var (
	// ErrServiceUnavailable wraps transport failures talking to the quiz backend.
	ErrServiceUnavailable = errors.New("quiz service unavailable")
	// ErrReportNotFound indicates no report exists for a session code.
	ErrReportNotFound = errors.New("session report not found")
	// ErrUnknownExportFormat is returned for formats other than PDF, CSV or EXCEL.
	ErrUnknownExportFormat = errors.New("unknown export format")
	// ErrTokenExpired is returned before any request is made with an expired bearer token.
	ErrTokenExpired = errors.New("bearer token expired")
	// ErrMissingToken indicates no bearer token could be found.
	ErrMissingToken = errors.New("bearer token not configured")
	// ErrInvalidToken is returned when a relay token fails signature or expiry checks.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrUnknownEventKind is returned when an event kind cannot be routed.
	ErrUnknownEventKind = errors.New("unknown event kind")
	// ErrNotConnected is returned by the messaging client after it was closed.
	ErrNotConnected = errors.New("messaging connection closed")
	// ErrParticipantStopped is returned once a participant's event loop has exited.
	ErrParticipantStopped = errors.New("participant view stopped")
)
