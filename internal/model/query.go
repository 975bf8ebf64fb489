package model

import "time"

// SearchType is the kind of entity a query targets.
type SearchType string

const (
	SearchTypeNotes    SearchType = "notes"
	SearchTypeUsers    SearchType = "users"
	SearchTypeHashtags SearchType = "hashtags"
	SearchTypeMentions SearchType = "mentions"
	SearchTypeMixed    SearchType = "mixed"
	SearchTypeMedia    SearchType = "media"
	SearchTypeLive     SearchType = "live"
)

// SortOrder controls result ranking.
type SortOrder string

const (
	SortRelevance    SortOrder = "relevance"
	SortRecency      SortOrder = "recency"
	SortPopularity   SortOrder = "popularity"
	SortTrending     SortOrder = "trending"
	SortMixedSignals SortOrder = "mixed_signals"
)

// SearchFilters narrows a query beyond free text.
type SearchFilters struct {
	FromDate       time.Time `json:"from_date,omitempty"`
	ToDate         time.Time `json:"to_date,omitempty"`
	FromUser       string    `json:"from_user,omitempty"`
	MentionedUsers []string  `json:"mentioned_users,omitempty"`
	ExcludedUsers  []string  `json:"excluded_users,omitempty"`
	Hashtags       []string  `json:"hashtags,omitempty"`
	ExcludedTags   []string  `json:"excluded_tags,omitempty"`
	HasMedia       *bool     `json:"has_media,omitempty"`
	HasLinks       *bool     `json:"has_links,omitempty"`
	VerifiedOnly   bool      `json:"verified_only,omitempty"`
	MinLikes       int64     `json:"min_likes,omitempty"`
	MinReposts     int64     `json:"min_reposts,omitempty"`
	MinReplies     int64     `json:"min_replies,omitempty"`
	GeoPlace       string    `json:"geo_place,omitempty"`
	GeoRadiusKM    float64   `json:"geo_radius_km,omitempty"`
	Language       string    `json:"language,omitempty"`
	ContentTypes   []string  `json:"content_types,omitempty"`
}

// IsEmpty reports whether no filter is set.
func (f SearchFilters) IsEmpty() bool {
	return f.FromDate.IsZero() && f.ToDate.IsZero() && f.FromUser == "" &&
		len(f.MentionedUsers) == 0 && len(f.ExcludedUsers) == 0 &&
		len(f.Hashtags) == 0 && len(f.ExcludedTags) == 0 &&
		f.HasMedia == nil && f.HasLinks == nil && !f.VerifiedOnly &&
		f.MinLikes == 0 && f.MinReposts == 0 && f.MinReplies == 0 &&
		f.GeoPlace == "" && f.Language == "" && len(f.ContentTypes) == 0
}

// Pagination bounds a result page.
type Pagination struct {
	Offset   int `json:"offset"`
	Limit    int `json:"limit"`
	MaxLimit int `json:"max_limit,omitempty"`
}

// Clamp enforces limit ∈ (0, MaxLimit] and offset ≥ 0, per §8 boundary rules.
func (p *Pagination) Clamp() {
	if p.MaxLimit <= 0 {
		p.MaxLimit = 100
	}
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > p.MaxLimit {
		p.Limit = p.MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// QueryWeights controls the mixed_signals function-score blend.
type QueryWeights struct {
	PopularityWeight float64 `json:"popularity_weight"`
	RecencyWeight    float64 `json:"recency_weight"`
}

// QueryConfig holds per-request execution knobs.
type QueryConfig struct {
	EnableFuzzyMatching bool          `json:"enable_fuzzy_matching"`
	EnableStemming      bool          `json:"enable_stemming"`
	SpellCorrect        bool          `json:"spell_correct"`
	Timeout             time.Duration `json:"timeout"`
	CacheEnabled        bool          `json:"cache_enabled"`
	CacheTTL            time.Duration `json:"cache_ttl"`
	Weights             QueryWeights  `json:"weights"`
}

// PersonalizationContext carries the viewer identity used for boosting.
type PersonalizationContext struct {
	ViewerID  string   `json:"viewer_id,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Following []string `json:"following,omitempty"`
}

// IsAnonymous reports whether no viewer is attached.
func (p PersonalizationContext) IsAnonymous() bool {
	return p.ViewerID == ""
}

// SearchQuery is the structured representation of a search request, built
// either by parsing free text (see internal/query) or directly by a caller.
type SearchQuery struct {
	Text            string                  `json:"text"`
	Type            SearchType              `json:"type,omitempty"`
	Sort            SortOrder               `json:"sort,omitempty"`
	Filters         SearchFilters           `json:"filters,omitempty"`
	Pagination      Pagination              `json:"pagination"`
	Config          QueryConfig             `json:"config"`
	Personalization PersonalizationContext  `json:"personalization,omitempty"`
}

// Valid implements the §4.5 validity rule: text non-empty or at least one
// filter set, limit in range, offset ≥ 0, timeout > 0, weights ≥ 0.
func (q *SearchQuery) Valid() bool {
	if q == nil {
		return false
	}
	if q.Text == "" && q.Filters.IsEmpty() {
		return false
	}
	if q.Pagination.Limit <= 0 || (q.Pagination.MaxLimit > 0 && q.Pagination.Limit > q.Pagination.MaxLimit) {
		return false
	}
	if q.Pagination.Offset < 0 {
		return false
	}
	if q.Config.Timeout <= 0 {
		return false
	}
	if q.Config.Weights.PopularityWeight < 0 || q.Config.Weights.RecencyWeight < 0 {
		return false
	}
	return true
}
