package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"livequiz-client/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims understood by the relay. ParticipantID and
// SessionCode are optional; host tokens usually carry only a subject.
type Claims struct {
	ParticipantID string `json:"participantId,omitempty"`
	SessionCode   string `json:"sessionCode,omitempty"`
	jwt.RegisteredClaims
}

// Source resolves the bearer token used against the quiz backend.
// An explicit token wins over the token file.
type Source struct {
	token string
	file  string
	now   func() time.Time
}

func NewSource(token, file string) *Source {
	return &Source{
		token: strings.TrimSpace(token),
		file:  strings.TrimSpace(file),
		now:   time.Now,
	}
}

// Token returns the configured token. Expired JWTs are rejected without a
// round trip; opaque tokens are passed through unchanged.
func (s *Source) Token() (string, error) {
	token := s.token
	if token == "" && s.file != "" {
		raw, err := os.ReadFile(s.file)
		if err != nil {
			return "", fmt.Errorf("read token file: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		return "", domain.ErrMissingToken
	}

	if strings.Count(token, ".") != 2 {
		return token, nil
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return token, nil
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(s.now()) {
		return "", fmt.Errorf("%w at %s", domain.ErrTokenExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	return token, nil
}

// Verifier checks HS256 tokens presented to the relay. A verifier with no
// secret accepts every connection.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if !v.Enabled() {
		return &Claims{}, nil
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// Issue signs a token for a participant or host. ttl <= 0 means no expiry.
func (v *Verifier) Issue(claims Claims, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", errors.New("relay secret not configured")
	}
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(v.secret)
}

// BearerToken extracts the token from the Authorization header, falling back
// to the token query parameter used by browser WebSocket clients.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return r.URL.Query().Get("token")
}
