// Package model holds the document and query types shared by the search
// subsystem: notes, users, search queries, search results, and indexing
// tasks. Types here are value objects — owned by whichever component
// produced them, copied by callers that need to hold on to a snapshot.
package model

import "time"

// Visibility controls who can see a note.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityUnlisted  Visibility = "unlisted"
	VisibilityFollowers Visibility = "followers"
	VisibilityPrivate   Visibility = "private"
)

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusDeleted   UserStatus = "deleted"
	UserStatusBot       UserStatus = "bot"
)

// VerificationLevel is the tier of a verified account.
type VerificationLevel string

const (
	VerificationNone         VerificationLevel = "none"
	VerificationBasic        VerificationLevel = "basic"
	VerificationOrganization VerificationLevel = "organization"
	VerificationOfficial     VerificationLevel = "official"
)

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// EngagementMetrics holds the raw counters a note accrues.
type EngagementMetrics struct {
	Likes   int64 `json:"likes"`
	Reposts int64 `json:"reposts"`
	Replies int64 `json:"replies"`
	Views   int64 `json:"views"`
}

// Total returns likes + reposts + replies; views are not counted as
// engagements.
func (m EngagementMetrics) Total() int64 {
	return m.Likes + m.Reposts + m.Replies
}

// DerivedScores holds the [0,1] scores computed by the scorer (C3) from a
// note's engagement metrics and age.
type DerivedScores struct {
	EngagementScore float64 `json:"engagement_score"`
	ViralityScore   float64 `json:"virality_score"`
	TrendingScore   float64 `json:"trending_score"`
}

// AuthorSnapshot is the author state captured at index time, used for
// ranking without a join back to the user index.
type AuthorSnapshot struct {
	UserID            string            `json:"user_id"`
	Username          string            `json:"username"`
	DisplayName       string            `json:"display_name"`
	Followers         int64             `json:"followers"`
	Following         int64             `json:"following"`
	Reputation        float64           `json:"reputation"`
	VerificationLevel VerificationLevel `json:"verification_level"`
	Verified          bool              `json:"verified"`
	Suspended         bool              `json:"suspended"`
}

// Boosts are multiplicative ranking factors; 1.0 is neutral.
type Boosts struct {
	Recency        float64 `json:"recency"`
	Engagement     float64 `json:"engagement"`
	Author         float64 `json:"author"`
	ContentQuality float64 `json:"content_quality"`
}

// Note is the canonical document for a short-text post.
type Note struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Text        string     `json:"text"`
	Hashtags    []string   `json:"hashtags"`
	Mentions    []string   `json:"mentions"`
	MediaURLs   []string   `json:"media_urls"`
	Language    string     `json:"language"`
	Location    *GeoPoint  `json:"location,omitempty"`
	PlaceName   string     `json:"place_name,omitempty"`
	ReplyToID   string     `json:"reply_to_id,omitempty"`
	RepostOfID  string     `json:"repost_of_id,omitempty"`
	ThreadID    string     `json:"thread_id,omitempty"`
	Visibility  Visibility `json:"visibility"`
	NSFW        bool       `json:"nsfw"`
	Sensitive   bool       `json:"sensitive"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Metrics EngagementMetrics `json:"metrics"`
	Scores  DerivedScores     `json:"scores"`
	Author  AuthorSnapshot    `json:"author"`
	Boosts  Boosts            `json:"boosts"`

	// Analysis outputs, filled by the content analyzer (C2) before indexing.
	QualityScore float64  `json:"quality_score"`
	SpamScore    float64  `json:"spam_score"`
	Topics       []string `json:"topics"`
	Sentiment    string   `json:"sentiment"`
}

// ShouldBeIndexed implements the indexability gate from §4.4: a note must
// not be indexed if it is private, the author is suspended, its text is
// empty, or content analysis marks it low-quality (< 0.2) or spam (> 0.7).
// Note has no deleted state of its own.
func (n *Note) ShouldBeIndexed() bool {
	if n == nil {
		return false
	}
	if n.Visibility == VisibilityPrivate {
		return false
	}
	if n.Author.Suspended {
		return false
	}
	if n.Text == "" {
		return false
	}
	if n.QualityScore < 0.2 {
		return false
	}
	if n.SpamScore > 0.7 {
		return false
	}
	return true
}

// User is the canonical document for a profile.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio"`
	AvatarURL   string    `json:"avatar_url"`
	BannerURL   string    `json:"banner_url"`
	Location    string    `json:"location,omitempty"`
	Website     string    `json:"website,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastActive  time.Time `json:"last_active_at"`

	VerificationLevel VerificationLevel `json:"verification_level"`
	VerifiedAt        time.Time         `json:"verified_at,omitempty"`

	FollowersCount int64 `json:"followers_count"`
	FollowingCount int64 `json:"following_count"`
	NotesCount     int64 `json:"notes_count"`
	LikesGiven     int64 `json:"likes_given"`
	LikesReceived  int64 `json:"likes_received"`

	Reputation   float64 `json:"reputation"`
	Influence    float64 `json:"influence"`
	Authenticity float64 `json:"authenticity"`

	IsPrivate  bool `json:"is_private"`
	Searchable bool `json:"searchable"`
	Indexable  bool `json:"indexable"`

	Status UserStatus `json:"status"`
	Boosts Boosts     `json:"boosts"`

	BotLikelihood float64 `json:"bot_likelihood"`
	IsBotLikely   bool    `json:"is_bot_likely"`
}

// ShouldBeIndexed implements the user-side indexability gate from §3: a
// user with indexable=false or searchable=false or a suspended/deleted
// status must never appear in search results.
func (u *User) ShouldBeIndexed() bool {
	if u == nil {
		return false
	}
	if !u.Indexable || !u.Searchable {
		return false
	}
	switch u.Status {
	case UserStatusSuspended, UserStatusDeleted:
		return false
	}
	return true
}

// IndexingOperation is the kind of change an indexing task represents.
type IndexingOperation string

const (
	OpCreate        IndexingOperation = "create"
	OpUpdate        IndexingOperation = "update"
	OpDelete        IndexingOperation = "delete"
	OpUpdateMetrics IndexingOperation = "update_metrics"
)

// DocumentType distinguishes the two symmetric pipelines.
type DocumentType string

const (
	DocumentNote DocumentType = "note"
	DocumentUser DocumentType = "user"
)

// IndexingTask is a unit of work queued for an indexing pipeline (C4).
// Ordering across the queue is strictly by (Priority desc, ScheduledAt asc).
type IndexingTask struct {
	ID            string
	DocType       DocumentType
	Op            IndexingOperation
	Note          *Note
	User          *User
	Priority      int
	EnqueuedAt    time.Time
	ScheduledAt   time.Time
	RetryCount    int
	CorrelationID string
}

// DocID returns the document identifier this task targets, regardless of
// document type.
func (t *IndexingTask) DocID() string {
	if t == nil {
		return ""
	}
	if t.Note != nil {
		return t.Note.ID
	}
	if t.User != nil {
		return t.User.ID
	}
	return t.ID
}
