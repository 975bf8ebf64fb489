package model

import "time"

// ResultType tags one entry in a mixed-order result vector.
type ResultType string

const (
	ResultTypeNote    ResultType = "note"
	ResultTypeUser    ResultType = "user"
	ResultTypeHashtag ResultType = "hashtag"
)

// MixedEntry is one (type, index) pair into the per-type result arrays.
type MixedEntry struct {
	Type  ResultType `json:"type"`
	Index int        `json:"index"`
	Score float64    `json:"score"`
}

// NoteHit is a decoded note result, including highlight fragments.
type NoteHit struct {
	Note       Note                `json:"note"`
	Score      float64             `json:"score"`
	Highlights map[string][]string `json:"highlights,omitempty"`
}

// UserHit is a decoded user result.
type UserHit struct {
	User       User                `json:"user"`
	Score      float64             `json:"score"`
	Highlights map[string][]string `json:"highlights,omitempty"`
}

// HashtagHit is an aggregated hashtag result.
type HashtagHit struct {
	Tag      string  `json:"tag"`
	Count    int64   `json:"count"`
	Score    float64 `json:"score"`
	Trending bool    `json:"trending"`
}

// Aggregations holds histogram/top-k buckets decoded from the backend
// response's aggregation section.
type Aggregations struct {
	Buckets map[string][]AggregationBucket `json:"buckets,omitempty"`
}

// AggregationBucket is one key/count pair in an aggregation.
type AggregationBucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// ResultMetadata carries response-level bookkeeping.
type ResultMetadata struct {
	QueryID            string   `json:"query_id"`
	TookMS             int64    `json:"took_ms"`
	ServedFromCache    bool     `json:"served_from_cache"`
	Total              int64    `json:"total"`
	MaxScore           float64  `json:"max_score"`
	AppliedCorrections []string `json:"applied_corrections,omitempty"`
	RewrittenQuery     string   `json:"rewritten_query,omitempty"`
}

// SearchResult is the typed representation of a search response.
type SearchResult struct {
	Notes        []NoteHit    `json:"notes,omitempty"`
	Users        []UserHit    `json:"users,omitempty"`
	Hashtags     []HashtagHit `json:"hashtags,omitempty"`
	Mixed        []MixedEntry `json:"mixed,omitempty"`
	Aggregations Aggregations `json:"aggregations"`
	Metadata     ResultMetadata `json:"metadata"`
}

// IsEmpty reports whether the result carries no hits of any kind — used by
// the controller to decide whether a result is worth putting in the response
// cache.
func (r *SearchResult) IsEmpty() bool {
	if r == nil {
		return true
	}
	return len(r.Notes) == 0 && len(r.Users) == 0 && len(r.Hashtags) == 0
}

// RelativeTime renders a display-friendly "time ago" string, a result-model
// display helper from §4.6.
func RelativeTime(t time.Time, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		return pluralize(mins, "minute")
	case d < 24*time.Hour:
		hours := int(d.Hours())
		return pluralize(hours, "hour")
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		return pluralize(days, "day")
	default:
		weeks := int(d.Hours() / 24 / 7)
		return pluralize(weeks, "week")
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return itoa(n) + " " + unit + "s ago"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// FormatCount renders a count using the familiar 1.2K/3.4M short form, a
// result-model display helper from §4.6.
func FormatCount(n int64) string {
	switch {
	case n < 1000:
		return itoa(int(n))
	case n < 1_000_000:
		return formatScaled(n, 1000, "K")
	case n < 1_000_000_000:
		return formatScaled(n, 1_000_000, "M")
	default:
		return formatScaled(n, 1_000_000_000, "B")
	}
}

func formatScaled(n int64, scale int64, suffix string) string {
	whole := n / scale
	frac := (n % scale) * 10 / scale
	if frac == 0 {
		return itoa(int(whole)) + suffix
	}
	return itoa(int(whole)) + "." + itoa(int(frac)) + suffix
}
