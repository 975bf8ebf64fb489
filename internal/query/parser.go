// Package query implements the query model (C5): the operator-grammar
// parser, the cache-key fingerprint, and the backend-query compiler,
// grounded on the original search_query.cpp/.h.
package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sonet-social/search-service/internal/model"
)

var (
	fromPattern     = regexp.MustCompile(`(?i)from:@?([A-Za-z0-9_]+)`)
	mentionPattern  = regexp.MustCompile(`@([A-Za-z0-9_]+)`)
	hashtagPattern  = regexp.MustCompile(`#([A-Za-z0-9_]+)`)
	sincePattern    = regexp.MustCompile(`(?i)since:(\S+)`)
	untilPattern    = regexp.MustCompile(`(?i)until:(\S+)`)
	minLikesPattern = regexp.MustCompile(`(?i)min_likes:(\d+)`)
	minRenotePattern = regexp.MustCompile(`(?i)min_renotes:(\d+)`)
	nearPattern     = regexp.MustCompile(`(?i)near:"([^"]+)"\s+within:(\d+(?:\.\d+)?)km`)
	langPattern     = regexp.MustCompile(`(?i)lang:([A-Za-z-]+)`)
	relativeAge     = regexp.MustCompile(`(?i)^(\d+)([hdw])$`)
	whitespace      = regexp.MustCompile(`\s+`)
)

// ParseText scans text for operator tokens per §4.5, folding matches into
// filters and returning the residual free-text query.
func ParseText(text string, now time.Time) (string, model.SearchFilters) {
	var filters model.SearchFilters
	residual := text

	if m := fromPattern.FindStringSubmatch(residual); m != nil {
		filters.FromUser = m[1]
		residual = fromPattern.ReplaceAllString(residual, "")
	}

	for _, m := range mentionPattern.FindAllStringSubmatch(residual, -1) {
		filters.MentionedUsers = appendUnique(filters.MentionedUsers, strings.ToLower(m[1]))
	}
	residual = mentionPattern.ReplaceAllString(residual, "")

	for _, m := range hashtagPattern.FindAllStringSubmatch(residual, -1) {
		filters.Hashtags = appendUnique(filters.Hashtags, strings.ToLower(m[1]))
	}
	residual = hashtagPattern.ReplaceAllString(residual, "")

	if m := sincePattern.FindStringSubmatch(residual); m != nil {
		if t, ok := parseTimeToken(m[1], now); ok {
			filters.FromDate = t
		}
		residual = sincePattern.ReplaceAllString(residual, "")
	}

	if m := untilPattern.FindStringSubmatch(residual); m != nil {
		if t, ok := parseTimeToken(m[1], now); ok {
			filters.ToDate = t
		}
		residual = untilPattern.ReplaceAllString(residual, "")
	}

	if m := minLikesPattern.FindStringSubmatch(residual); m != nil {
		n, _ := strconv.ParseInt(m[1], 10, 64)
		filters.MinLikes = n
		residual = minLikesPattern.ReplaceAllString(residual, "")
	}

	if m := minRenotePattern.FindStringSubmatch(residual); m != nil {
		n, _ := strconv.ParseInt(m[1], 10, 64)
		filters.MinReposts = n
		residual = minRenotePattern.ReplaceAllString(residual, "")
	}

	if m := nearPattern.FindStringSubmatch(residual); m != nil {
		filters.GeoPlace = m[1]
		radius, _ := strconv.ParseFloat(m[2], 64)
		filters.GeoRadiusKM = radius
		residual = nearPattern.ReplaceAllString(residual, "")
	}

	if m := langPattern.FindStringSubmatch(residual); m != nil {
		filters.Language = strings.ToLower(m[1])
		residual = langPattern.ReplaceAllString(residual, "")
	}

	residual = strings.TrimSpace(whitespace.ReplaceAllString(residual, " "))
	return residual, filters
}

// parseTimeToken accepts an absolute YYYY-MM-DD[THH:MM:SS] timestamp or a
// relative Nh/Nd/Nw offset from now.
func parseTimeToken(token string, now time.Time) (time.Time, bool) {
	if m := relativeAge.FindStringSubmatch(token); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "h":
			return now.Add(-time.Duration(n) * time.Hour), true
		case "d":
			return now.Add(-time.Duration(n) * 24 * time.Hour), true
		case "w":
			return now.Add(-time.Duration(n) * 7 * 24 * time.Hour), true
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, token); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// BuildQuery parses raw text into a full SearchQuery, applying defaults
// for pagination and config the way the controller expects before Valid()
// is checked.
func BuildQuery(rawText string, searchType model.SearchType, sort model.SortOrder, now time.Time) model.SearchQuery {
	text, filters := ParseText(rawText, now)
	return model.SearchQuery{
		Text:    text,
		Type:    searchType,
		Sort:    sort,
		Filters: filters,
		Pagination: model.Pagination{
			Offset:   0,
			Limit:    20,
			MaxLimit: 100,
		},
		Config: model.QueryConfig{
			EnableFuzzyMatching: true,
			Timeout:             5 * time.Second,
			CacheEnabled:        true,
			CacheTTL:            5 * time.Minute,
			Weights:             model.QueryWeights{PopularityWeight: 1, RecencyWeight: 1},
		},
	}
}
