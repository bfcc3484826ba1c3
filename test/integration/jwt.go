package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitabwire/wiredriver/model"
)

const (
	testSigningKeyEnv = "TEST_REMOTE_SIGNING_KEY"
	testIssuer        = "https://driverctl.test.wiredriver.dev"
	testAudience      = "remote-end-test"
	testSubject       = "integration-suite"
)

type subjectKey struct{}

// tokenVerifier rejects requests whose bearer token is missing, expired, or
// not signed with the shared HS256 key.
type tokenVerifier struct {
	key      []byte
	issuer   string
	audience string
}

func newTokenVerifier(key string) *tokenVerifier {
	return &tokenVerifier{key: []byte(key), issuer: testIssuer, audience: testAudience}
}

func (v *tokenVerifier) verify(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

func (v *tokenVerifier) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The WebSocket handshake authenticates through the session URL.
		if r.URL.Path == "/bidi" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			unauthorized(w, "missing bearer token")
			return
		}
		claims, err := v.verify(raw)
		if err != nil {
			unauthorized(w, fmt.Sprintf("invalid token: %v", err))
			return
		}
		ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func subjectFrom(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

func unauthorized(w http.ResponseWriter, message string) {
	writeValue(w, http.StatusUnauthorized, map[string]any{"value": errorValue(model.CodeUnknownError, message)})
}
