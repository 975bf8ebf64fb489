// Package controller implements the RPC surface (C10): search, trending,
// suggestions, and autocomplete, composing the auth gate, rate limiter,
// response cache, query compiler, and result decoder into one request path,
// grounded on the original search_controller.cpp orchestration and on the
// service-package wiring style used throughout this codebase's packages/.
package controller

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sonet-social/search-service/infrastructure/metrics"
	"github.com/sonet-social/search-service/internal/authgate"
	"github.com/sonet-social/search-service/internal/model"
	"github.com/sonet-social/search-service/internal/query"
	"github.com/sonet-social/search-service/internal/ratelimiter"
	"github.com/sonet-social/search-service/internal/result"
)

// Backend is the subset of *backend.Client the controller depends on.
type Backend interface {
	Search(ctx context.Context, indices []string, queryDoc interface{}) (json.RawMessage, error)
}

// Cache is the subset of *respcache.Cache the controller depends on.
type Cache interface {
	Get(key string) (model.SearchResult, bool)
	Put(key string, value model.SearchResult)
}

// Limiter is the subset of *ratelimiter.Limiter the controller depends on.
type Limiter interface {
	Allow(key string, tier ratelimiter.Tier) bool
}

// Gate is the subset of *authgate.Gate the controller depends on.
type Gate interface {
	Validate(ctx context.Context, authHeader string) authgate.Identity
}

// RequestContext carries the per-call metadata the spec requires every RPC
// entry point to accept alongside its payload.
type RequestContext struct {
	ClientIP       string
	SessionID      string
	UserID         string
	AuthHeader     string
	AcceptLanguage string
	Referer        string
	UserAgent      string
	RequestID      string
}

func (rc *RequestContext) requestID() string {
	if rc.RequestID != "" {
		return rc.RequestID
	}
	return uuid.NewString()
}

// SlowQueryEntry is one record in the bounded slow-query ring buffer.
type SlowQueryEntry struct {
	Query     string
	TookMS    int64
	Indices   []string
	HitsTotal int64
	At        time.Time
}

const maxSlowLog = 100

// Config controls the controller's cache indices and refresh intervals.
type Config struct {
	NotesIndex       string
	UsersIndex       string
	SlowQueryThresh  time.Duration
	TrendingTTL      time.Duration
	SuggestTTL       time.Duration
}

// Controller composes the subsystems above into the RPC surface.
type Controller struct {
	cfg     Config
	backend Backend
	cache   Cache
	limiter Limiter
	gate    Gate
	metrics *metrics.Metrics
	log     zerolog.Logger

	slowMu  sync.Mutex
	slowLog []SlowQueryEntry

	trendingMu         sync.Mutex
	trendingHashtags   model.SearchResult
	trendingHashtagsAt time.Time
	trendingUsers      model.SearchResult
	trendingUsersAt    time.Time

	suggestMu    sync.Mutex
	suggestCache map[string]suggestEntry

	cron *cron.Cron
}

type suggestEntry struct {
	result model.SearchResult
	at     time.Time
}

// New constructs a Controller and starts its cron-driven trending refresh.
func New(cfg Config, backend Backend, cache Cache, limiter Limiter, gate Gate, m *metrics.Metrics, log zerolog.Logger) *Controller {
	if cfg.NotesIndex == "" {
		cfg.NotesIndex = "notes"
	}
	if cfg.UsersIndex == "" {
		cfg.UsersIndex = "users"
	}
	if cfg.TrendingTTL <= 0 {
		cfg.TrendingTTL = 5 * time.Minute
	}
	if cfg.SuggestTTL <= 0 {
		cfg.SuggestTTL = 10 * time.Minute
	}

	c := &Controller{
		cfg:          cfg,
		backend:      backend,
		cache:        cache,
		limiter:      limiter,
		gate:         gate,
		metrics:      m,
		log:          log.With().Str("component", "controller").Logger(),
		suggestCache: make(map[string]suggestEntry),
	}

	c.cron = cron.New()
	c.cron.AddFunc("@every 5m", func() { c.refreshTrendingHashtags(context.Background()) })
	c.cron.AddFunc("@every 5m", func() { c.refreshTrendingUsers(context.Background()) })
	c.cron.Start()

	return c
}

// Stop halts the cron scheduler.
func (c *Controller) Stop() {
	if c.cron != nil {
		c.cron.Stop()
	}
}

// SearchNotes executes a notes search through the full request pipeline.
func (c *Controller) SearchNotes(ctx context.Context, rc RequestContext, q model.SearchQuery) Envelope {
	q.Type = model.SearchTypeNotes
	return c.search(ctx, rc, q, "SearchNotes", []string{c.cfg.NotesIndex})
}

// SearchUsers executes a users search through the full request pipeline.
func (c *Controller) SearchUsers(ctx context.Context, rc RequestContext, q model.SearchQuery) Envelope {
	q.Type = model.SearchTypeUsers
	return c.search(ctx, rc, q, "SearchUsers", []string{c.cfg.UsersIndex})
}

func (c *Controller) search(ctx context.Context, rc RequestContext, q model.SearchQuery, rpc string, indices []string) Envelope {
	start := time.Now()
	requestID := rc.requestID()

	identity := c.authenticate(ctx, rc, rpc)
	if identity == nil {
		return c.recordFailure(rpc, requestID, ErrAuthenticationRequired, "authentication required", start)
	}

	if !c.checkRateLimit(rc, *identity, rpc) {
		return c.recordFailure(rpc, requestID, ErrRateLimitExceeded, "rate limit exceeded", start)
	}

	if !q.Valid() {
		return c.recordFailure(rpc, requestID, ErrInvalidQuery, "query failed validation", start)
	}

	if q.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Config.Timeout)
		defer cancel()
	}

	cacheKey := ""
	if q.Config.CacheEnabled {
		if identity.Authenticated {
			q.Personalization.ViewerID = identity.UserID
		}
		cacheKey = query.Fingerprint(q)
		if cached, ok := c.cache.Get(cacheKey); ok {
			c.recordCacheResult(rpc, true)
			took := time.Since(start).Milliseconds()
			return success(requestID, took, true, &cached, time.Now())
		}
		c.recordCacheResult(rpc, false)
	}

	doc := query.Compile(q)
	raw, err := c.backend.Search(ctx, indices, doc)
	if err != nil {
		if ctx.Err() != nil {
			return c.recordFailure(rpc, requestID, ErrTimeout, "query deadline exceeded", start)
		}
		return c.recordFailure(rpc, requestID, ErrBackendUnavailable, err.Error(), start)
	}

	took := time.Since(start).Milliseconds()
	res := result.Decode(raw, requestID, took)
	result.PostFilter(&res, identity.Authenticated)

	if cacheKey != "" && !res.IsEmpty() {
		c.cache.Put(cacheKey, res)
	}

	c.recordSlowQuery(q.Text, took, indices, res.Metadata.Total)
	c.recordSuccess(rpc, took)
	return success(requestID, took, false, &res, time.Now())
}

func (c *Controller) authenticate(ctx context.Context, rc RequestContext, rpc string) *authgate.Identity {
	var identity authgate.Identity
	if c.gate != nil {
		identity = c.gate.Validate(ctx, rc.AuthHeader)
	} else {
		identity = authgate.Identity{Authenticated: false, Permissions: []string{authgate.PublicSearch}}
	}
	if !identity.Authenticated && !identity.HasPermission(authgate.PublicSearch) {
		if c.metrics != nil {
			c.metrics.RecordAuthFailure("search", rpc)
		}
		return nil
	}
	return &identity
}

func (c *Controller) checkRateLimit(rc RequestContext, identity authgate.Identity, rpc string) bool {
	if c.limiter == nil {
		return true
	}
	key := ratelimiter.Key(identity.UserID, rc.ClientIP)
	tier := ratelimiter.TierAnonymous
	if identity.Tier != "" {
		tier = ratelimiter.Tier(identity.Tier)
	} else if identity.Authenticated {
		tier = ratelimiter.TierBasic
	}
	allowed := c.limiter.Allow(key, tier)
	if !allowed && c.metrics != nil {
		c.metrics.RecordRateLimited("search", rpc)
	}
	return allowed
}

func (c *Controller) recordCacheResult(rpc string, hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheResult("search", rpc, hit)
	}
}

func (c *Controller) recordSuccess(rpc string, tookMS int64) {
	if c.metrics != nil {
		c.metrics.RecordRPC("search", rpc, "", true, time.Duration(tookMS)*time.Millisecond)
	}
}

func (c *Controller) recordFailure(rpc, requestID string, code ErrorCode, message string, start time.Time) Envelope {
	took := time.Since(start).Milliseconds()
	if c.metrics != nil {
		c.metrics.RecordRPC("search", rpc, string(code), false, time.Duration(took)*time.Millisecond)
	}
	return failure(requestID, code, message, took, time.Now())
}

func (c *Controller) recordSlowQuery(queryText string, tookMS int64, indices []string, hitsTotal int64) {
	if c.cfg.SlowQueryThresh <= 0 || time.Duration(tookMS)*time.Millisecond < c.cfg.SlowQueryThresh {
		return
	}
	entry := SlowQueryEntry{Query: queryText, TookMS: tookMS, Indices: indices, HitsTotal: hitsTotal, At: time.Now()}
	c.slowMu.Lock()
	defer c.slowMu.Unlock()
	c.slowLog = append(c.slowLog, entry)
	if len(c.slowLog) > maxSlowLog {
		c.slowLog = c.slowLog[len(c.slowLog)-maxSlowLog:]
	}
}

// SlowQueries returns a snapshot of the bounded slow-query ring buffer.
func (c *Controller) SlowQueries() []SlowQueryEntry {
	c.slowMu.Lock()
	defer c.slowMu.Unlock()
	out := make([]SlowQueryEntry, len(c.slowLog))
	copy(out, c.slowLog)
	return out
}

// GetTrendingHashtags serves the most recent trending-hashtag refresh.
func (c *Controller) GetTrendingHashtags(ctx context.Context, rc RequestContext) Envelope {
	start := time.Now()
	requestID := rc.requestID()
	if identity := c.authenticate(ctx, rc, "TrendingHashtags"); identity == nil {
		return c.recordFailure("TrendingHashtags", requestID, ErrAuthenticationRequired, "authentication required", start)
	}

	c.trendingMu.Lock()
	stale := time.Since(c.trendingHashtagsAt) > c.cfg.TrendingTTL
	res := c.trendingHashtags
	c.trendingMu.Unlock()

	if stale {
		c.refreshTrendingHashtags(ctx)
		c.trendingMu.Lock()
		res = c.trendingHashtags
		c.trendingMu.Unlock()
	}

	return success(requestID, time.Since(start).Milliseconds(), false, &res, time.Now())
}

// GetTrendingUsers serves the most recent trending-user refresh.
func (c *Controller) GetTrendingUsers(ctx context.Context, rc RequestContext) Envelope {
	start := time.Now()
	requestID := rc.requestID()
	if identity := c.authenticate(ctx, rc, "TrendingUsers"); identity == nil {
		return c.recordFailure("TrendingUsers", requestID, ErrAuthenticationRequired, "authentication required", start)
	}

	c.trendingMu.Lock()
	stale := time.Since(c.trendingUsersAt) > c.cfg.TrendingTTL
	res := c.trendingUsers
	c.trendingMu.Unlock()

	if stale {
		c.refreshTrendingUsers(ctx)
		c.trendingMu.Lock()
		res = c.trendingUsers
		c.trendingMu.Unlock()
	}

	return success(requestID, time.Since(start).Milliseconds(), false, &res, time.Now())
}

func (c *Controller) refreshTrendingHashtags(ctx context.Context) {
	q := query.BuildQuery("", model.SearchTypeHashtags, model.SortTrending, time.Now())
	doc := query.Compile(q)
	raw, err := c.backend.Search(ctx, []string{c.cfg.NotesIndex}, doc)
	if err != nil {
		c.log.Warn().Err(err).Msg("trending hashtag refresh failed")
		return
	}
	res := result.Decode(raw, "trending-hashtags", 0)
	c.trendingMu.Lock()
	c.trendingHashtags = res
	c.trendingHashtagsAt = time.Now()
	c.trendingMu.Unlock()
}

func (c *Controller) refreshTrendingUsers(ctx context.Context) {
	q := query.BuildQuery("", model.SearchTypeUsers, model.SortTrending, time.Now())
	doc := query.Compile(q)
	raw, err := c.backend.Search(ctx, []string{c.cfg.UsersIndex}, doc)
	if err != nil {
		c.log.Warn().Err(err).Msg("trending user refresh failed")
		return
	}
	res := result.Decode(raw, "trending-users", 0)
	result.PostFilter(&res, false)
	c.trendingMu.Lock()
	c.trendingUsers = res
	c.trendingUsersAt = time.Now()
	c.trendingMu.Unlock()
}

// GetSuggestions returns prefix-bucketed suggestions, refreshed
// independently per first-two-character bucket.
func (c *Controller) GetSuggestions(ctx context.Context, rc RequestContext, prefix string) Envelope {
	start := time.Now()
	requestID := rc.requestID()

	identity := c.authenticate(ctx, rc, "Suggestions")
	if identity == nil {
		return c.recordFailure("Suggestions", requestID, ErrAuthenticationRequired, "authentication required", start)
	}
	if len(prefix) < 2 {
		return c.recordFailure("Suggestions", requestID, ErrInvalidQuery, "prefix must be at least 2 characters", start)
	}

	bucket := strings.ToLower(prefix[:2])

	c.suggestMu.Lock()
	entry, ok := c.suggestCache[bucket]
	c.suggestMu.Unlock()

	if !ok || time.Since(entry.at) > c.cfg.SuggestTTL {
		q := query.BuildQuery(prefix, model.SearchTypeMixed, model.SortRelevance, time.Now())
		q.Pagination.Limit = 10
		doc := query.Compile(q)
		raw, err := c.backend.Search(ctx, []string{c.cfg.NotesIndex, c.cfg.UsersIndex}, doc)
		if err != nil {
			return c.recordFailure("Suggestions", requestID, ErrBackendUnavailable, err.Error(), start)
		}
		res := result.Decode(raw, requestID, time.Since(start).Milliseconds())
		result.PostFilter(&res, identity.Authenticated)
		result.FilterByPrefix(&res, prefix)
		entry = suggestEntry{result: res, at: time.Now()}
		c.suggestMu.Lock()
		c.suggestCache[bucket] = entry
		c.suggestMu.Unlock()
	}

	return success(requestID, time.Since(start).Milliseconds(), false, &entry.result, time.Now())
}

// Autocomplete follows the same pathway as Suggestions with a full query
// string rather than a fixed prefix.
func (c *Controller) Autocomplete(ctx context.Context, rc RequestContext, rawText string) Envelope {
	return c.GetSuggestions(ctx, rc, rawText)
}
