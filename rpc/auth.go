package rpc

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/propsproject/props-protocol-sub000/crypto"
)

type contextKey string

const contextKeyCaller contextKey = "rpc.caller"

var (
	errMissingBearer = errors.New("missing bearer token")
	errNoSecret      = errors.New("auth secret not configured")
	errBadSubject    = errors.New("token subject is not an address")
)

// AuthConfig controls bearer token validation. Tokens are HS256 JWTs whose
// subject is the caller address.
type AuthConfig struct {
	Secret    []byte
	Issuer    string
	ClockSkew time.Duration
}

// Authenticator resolves the calling account from a bearer token.
type Authenticator struct {
	cfg AuthConfig
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 30 * time.Second
	}
	return &Authenticator{cfg: cfg}
}

// Middleware rejects requests without a valid token and records the caller
// on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyCaller, caller)))
	})
}

// Authenticate validates an Authorization header value.
func (a *Authenticator) Authenticate(header string) (common.Address, error) {
	raw := extractBearer(header)
	if raw == "" {
		return common.Address{}, errMissingBearer
	}
	if len(a.cfg.Secret) == 0 {
		return common.Address{}, errNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.cfg.Secret, nil
	}, opts...); err != nil {
		return common.Address{}, err
	}
	caller, err := crypto.ParseAddress(claims.Subject)
	if err != nil || caller == (common.Address{}) {
		return common.Address{}, errBadSubject
	}
	return caller, nil
}

// MintToken issues a bearer token for caller valid for ttl.
func MintToken(secret []byte, issuer string, caller common.Address, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errNoSecret
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   caller.Hex(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func callerFrom(r *http.Request) (common.Address, bool) {
	caller, ok := r.Context().Value(contextKeyCaller).(common.Address)
	return caller, ok
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
