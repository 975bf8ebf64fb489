// Package authgate implements the auth gate (C9): bearer-token parsing, an
// opaque external identity validator, an optional JWT fast path, and a
// short-TTL positive-result cache, grounded on the original auth flow
// referenced by search_controller.cpp and adapted from
// infrastructure/cache's entry/TTL shape.
package authgate

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the outcome of Validate.
type Identity struct {
	Authenticated bool
	UserID        string
	Permissions   []string
	Tier          string
}

// PublicSearch is the permission an unauthenticated caller is granted by
// default validators, letting public_search-eligible RPCs proceed.
const PublicSearch = "public_search"

// Validator is the opaque external identity service this gate defers to
// for any token it cannot fast-path via JWT.
type Validator interface {
	Validate(ctx context.Context, token string) (Identity, error)
}

type cacheEntry struct {
	identity  Identity
	expiresAt time.Time
}

// Gate parses bearer tokens and resolves identities, caching positive
// results briefly per §4.8.
type Gate struct {
	validator Validator
	jwtSecret []byte
	cacheTTL  time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New constructs a Gate. jwtSecret may be nil/empty to disable the JWT
// fast path, in which case every token round-trips through validator.
func New(validator Validator, jwtSecret []byte, cacheTTL time.Duration) *Gate {
	if cacheTTL <= 0 || cacheTTL > 60*time.Second {
		cacheTTL = 60 * time.Second
	}
	return &Gate{
		validator: validator,
		jwtSecret: jwtSecret,
		cacheTTL:  cacheTTL,
		cache:     make(map[string]cacheEntry),
	}
}

// ParseBearer extracts the raw token from an Authorization header value.
func ParseBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// Anonymous is the identity returned for a missing or invalid token: not
// authenticated, granted only public_search.
func Anonymous() Identity {
	return Identity{Authenticated: false, Permissions: []string{PublicSearch}}
}

// Validate resolves an Authorization header into an Identity. A missing or
// malformed header yields Anonymous(), never an error.
func (g *Gate) Validate(ctx context.Context, authHeader string) Identity {
	token, ok := ParseBearer(authHeader)
	if !ok {
		return Anonymous()
	}

	if cached, ok := g.lookupCache(token); ok {
		return cached
	}

	if identity, ok := g.tryJWT(token); ok {
		g.storeCache(token, identity)
		return identity
	}

	if g.validator == nil {
		return Anonymous()
	}
	identity, err := g.validator.Validate(ctx, token)
	if err != nil || !identity.Authenticated {
		return Anonymous()
	}
	g.storeCache(token, identity)
	return identity
}

// tryJWT attempts the fast path: a locally-verifiable JWT with the
// configured secret, carrying sub/permissions/tier claims.
func (g *Gate) tryJWT(token string) (Identity, bool) {
	if len(g.jwtSecret) == 0 {
		return Identity{}, false
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return g.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return Identity{}, false
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, false
	}
	tier, _ := claims["tier"].(string)

	var perms []string
	if raw, ok := claims["permissions"].([]interface{}); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				perms = append(perms, s)
			}
		}
	}
	if len(perms) == 0 {
		perms = []string{PublicSearch}
	}

	return Identity{Authenticated: true, UserID: sub, Permissions: perms, Tier: tier}, true
}

func (g *Gate) lookupCache(token string) (Identity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry, ok := g.cache[token]
	if !ok {
		return Identity{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(g.cache, token)
		return Identity{}, false
	}
	return entry.identity, true
}

func (g *Gate) storeCache(token string, identity Identity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache[token] = cacheEntry{identity: identity, expiresAt: time.Now().Add(g.cacheTTL)}
}

// HasPermission reports whether an identity carries the named permission.
func (i Identity) HasPermission(name string) bool {
	for _, p := range i.Permissions {
		if p == name {
			return true
		}
	}
	return false
}
