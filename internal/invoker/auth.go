package invoker

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pitabwire/wiredriver/internal/config"
)

// Authenticator decorates outgoing requests with credentials.
type Authenticator interface {
	Authenticate(req *http.Request) error
}

// BasicAuth sends HTTP basic credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Authenticate implements Authenticator.
func (a BasicAuth) Authenticate(req *http.Request) error {
	req.SetBasicAuth(a.Username, a.Password)
	return nil
}

// BearerToken sends a static bearer token.
type BearerToken struct {
	Token string
}

// Authenticate implements Authenticator.
func (a BearerToken) Authenticate(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+sanitizeHeader(a.Token))
	return nil
}

// JWTSigner mints a short-lived HS256 token for every request.
type JWTSigner struct {
	Key      []byte
	Issuer   string
	Subject  string
	Audience string
	TTL      time.Duration

	now func() time.Time
}

// Authenticate implements Authenticator.
func (s *JWTSigner) Authenticate(req *http.Request) error {
	token, err := s.Sign()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Sign returns a freshly signed token.
func (s *JWTSigner) Sign() (string, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	issued := now()

	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.Issuer,
		Subject:   s.Subject,
		IssuedAt:  jwt.NewNumericDate(issued),
		NotBefore: jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
	}
	if s.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Key)
	if err != nil {
		return "", fmt.Errorf("invoker: sign token: %w", err)
	}
	return signed, nil
}

// NewAuthenticator builds the authenticator selected by cfg. Secrets are read
// through getenv. Credentials embedded in the server URL are used for basic
// auth when no strategy is configured. A nil Authenticator means requests go
// out unauthenticated.
func NewAuthenticator(cfg config.AuthConfig, serverURL *url.URL, getenv func(string) string) (Authenticator, error) {
	switch cfg.Strategy {
	case "", "none":
		if serverURL != nil && serverURL.User != nil {
			pass, _ := serverURL.User.Password()
			return BasicAuth{Username: serverURL.User.Username(), Password: pass}, nil
		}
		return nil, nil
	case "basic":
		user, pass := cfg.Username, cfg.Password
		if user == "" && serverURL != nil && serverURL.User != nil {
			user = serverURL.User.Username()
			pass, _ = serverURL.User.Password()
		}
		if user == "" {
			return nil, fmt.Errorf("invoker: basic auth requires a username")
		}
		return BasicAuth{Username: user, Password: pass}, nil
	case "bearer":
		token := getenv(cfg.TokenEnv)
		if token == "" {
			return nil, fmt.Errorf("invoker: bearer auth: %s is empty", cfg.TokenEnv)
		}
		return BearerToken{Token: token}, nil
	case "jwt":
		key := getenv(cfg.JWT.SigningKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("invoker: jwt auth: %s is empty", cfg.JWT.SigningKeyEnv)
		}
		return &JWTSigner{
			Key:      []byte(key),
			Issuer:   cfg.JWT.Issuer,
			Subject:  cfg.JWT.Subject,
			Audience: cfg.JWT.Audience,
			TTL:      cfg.JWT.TTL,
		}, nil
	default:
		return nil, fmt.Errorf("invoker: unknown auth strategy %q", cfg.Strategy)
	}
}
