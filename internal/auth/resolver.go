package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/chalatsithapelo-ops/square15management-sub006/internal/config"
)

// Resolver turns a credential into a Principal. Failures wrap
// ErrUnauthenticated.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (Principal, error)
}

// Claims is the JWT payload. The subject is the user ID.
type Claims struct {
	Name        string   `json:"name"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 tokens.
type JWTResolver struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTResolver returns a resolver for tokens signed with secret and
// issued by issuer.
func NewJWTResolver(secret, issuer string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Resolve validates token and builds the principal from its claims.
func (r *JWTResolver) Resolve(_ context.Context, token string) (Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return r.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(r.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	extra := make([]Permission, len(claims.Permissions))
	for i, p := range claims.Permissions {
		extra[i] = Permission(p)
	}
	p, err := NewPrincipal(claims.Subject, claims.Name, claims.Email, claims.Role, extra...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return p, nil
}

// IssueToken signs a token for p valid for ttl from now.
func IssueToken(secret, issuer string, p Principal, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("issue token: empty secret")
	}
	var extra []string
	for _, perm := range p.perms {
		if !slices.Contains(rolePermissions[p.Role], perm) {
			extra = append(extra, string(perm))
		}
	}
	claims := Claims{
		Name:        p.Name,
		Email:       p.Email,
		Role:        p.Role,
		Permissions: extra,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

type apiKey struct {
	name      string
	hash      []byte
	principal Principal
}

// APIKeyResolver matches long-lived keys against bcrypt hashes.
type APIKeyResolver struct {
	keys []apiKey
}

// NewAPIKeyResolver builds a resolver from configured keys.
func NewAPIKeyResolver(keys []config.APIKeyConfig) (*APIKeyResolver, error) {
	r := &APIKeyResolver{}
	for _, k := range keys {
		id := k.UserID
		if id == "" {
			id = "apikey:" + k.Name
		}
		p, err := NewPrincipal(id, k.Name, k.Email, k.Role)
		if err != nil {
			return nil, fmt.Errorf("api key %s: %w", k.Name, err)
		}
		r.keys = append(r.keys, apiKey{name: k.Name, hash: []byte(k.Hash), principal: p})
	}
	return r, nil
}

// Resolve returns the principal of the first key whose hash matches.
func (r *APIKeyResolver) Resolve(_ context.Context, key string) (Principal, error) {
	for _, k := range r.keys {
		if bcrypt.CompareHashAndPassword(k.hash, []byte(key)) == nil {
			return k.principal, nil
		}
	}
	return Principal{}, fmt.Errorf("%w: api key not recognized", ErrUnauthenticated)
}

// HashAPIKey returns the bcrypt hash to store in config for key.
func HashAPIKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(h), nil
}

// Chain dispatches credentials: JWTs (three dot-separated segments) go
// to Tokens, everything else to Keys. Either may be nil.
type Chain struct {
	Tokens Resolver
	Keys   Resolver
}

// Resolve strips an optional "Bearer " prefix and dispatches.
func (c Chain) Resolve(ctx context.Context, credential string) (Principal, error) {
	credential = strings.TrimSpace(credential)
	if len(credential) > 7 && strings.EqualFold(credential[:7], "bearer ") {
		credential = strings.TrimSpace(credential[7:])
	}
	if credential == "" {
		return Principal{}, fmt.Errorf("%w: no credential", ErrUnauthenticated)
	}

	next := c.Keys
	if strings.Count(credential, ".") == 2 {
		next = c.Tokens
	}
	if next == nil {
		return Principal{}, fmt.Errorf("%w: credential type not accepted", ErrUnauthenticated)
	}
	return next.Resolve(ctx, credential)
}

// NewFromConfig builds the credential chain from the auth config.
func NewFromConfig(cfg config.AuthConfig) (Chain, error) {
	var c Chain
	if cfg.JWTSecret != "" {
		c.Tokens = NewJWTResolver(cfg.JWTSecret, cfg.Issuer)
	}
	if len(cfg.APIKeys) > 0 {
		keys, err := NewAPIKeyResolver(cfg.APIKeys)
		if err != nil {
			return Chain{}, err
		}
		c.Keys = keys
	}
	if c.Tokens == nil && c.Keys == nil {
		return Chain{}, errors.New("auth: configure auth.jwt_secret or auth.api_keys")
	}
	return c, nil
}
