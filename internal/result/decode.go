// Package result implements the result model (C6): decoding the backend
// hit stream into typed records, extracting highlight fragments, and
// post-filtering/personalizing, grounded on the original search_result.cpp/.h.
package result

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sonet-social/search-service/internal/model"
)

// Decode parses a raw _search response body into a SearchResult. The target
// record type for each hit is inferred from the hit's index name containing
// "notes", "users", or "hashtags", per §4.6.
func Decode(raw []byte, queryID string, tookMS int64) model.SearchResult {
	parsed := gjson.ParseBytes(raw)

	var out model.SearchResult
	out.Metadata.QueryID = queryID
	out.Metadata.TookMS = tookMS
	out.Metadata.Total = parsed.Get("hits.total.value").Int()
	out.Metadata.MaxScore = parsed.Get("hits.max_score").Float()

	hits := parsed.Get("hits.hits")
	hits.ForEach(func(_, hit gjson.Result) bool {
		index := hit.Get("_index").String()
		score := hit.Get("_score").Float()
		highlights := decodeHighlights(hit.Get("highlight"))

		switch {
		case strings.Contains(index, "notes"):
			note := decodeNote(hit.Get("_source"))
			out.Notes = append(out.Notes, model.NoteHit{Note: note, Score: score, Highlights: highlights})
			out.Mixed = append(out.Mixed, model.MixedEntry{Type: model.ResultTypeNote, Index: len(out.Notes) - 1, Score: score})
		case strings.Contains(index, "users"):
			user := decodeUser(hit.Get("_source"))
			out.Users = append(out.Users, model.UserHit{User: user, Score: score, Highlights: highlights})
			out.Mixed = append(out.Mixed, model.MixedEntry{Type: model.ResultTypeUser, Index: len(out.Users) - 1, Score: score})
		case strings.Contains(index, "hashtags"):
			out.Hashtags = append(out.Hashtags, decodeHashtag(hit.Get("_source"), score))
		}
		return true
	})

	out.Aggregations = decodeAggregations(parsed.Get("aggregations"))
	return out
}

func decodeNote(src gjson.Result) model.Note {
	var n model.Note
	n.ID = src.Get("id").String()
	n.UserID = src.Get("user_id").String()
	n.Username = src.Get("author.username").String()
	n.DisplayName = src.Get("author.display_name").String()
	n.Text = src.Get("content").String()
	n.Language = src.Get("language").String()
	n.Visibility = model.Visibility(src.Get("visibility").String())
	n.NSFW = src.Get("nsfw").Bool()
	n.Sensitive = src.Get("sensitive").Bool()
	n.CreatedAt = decodeTimestamp(src.Get("created_at"))
	n.UpdatedAt = decodeTimestamp(src.Get("updated_at"))

	for _, v := range src.Get("hashtags").Array() {
		n.Hashtags = append(n.Hashtags, v.String())
	}
	for _, v := range src.Get("mentions").Array() {
		n.Mentions = append(n.Mentions, v.String())
	}
	for _, v := range src.Get("media").Array() {
		n.MediaURLs = append(n.MediaURLs, v.String())
	}

	n.Metrics = model.EngagementMetrics{
		Likes:   src.Get("metrics.likes").Int(),
		Reposts: src.Get("metrics.reposts").Int(),
		Replies: src.Get("metrics.replies").Int(),
		Views:   src.Get("metrics.views").Int(),
	}
	n.Scores = model.DerivedScores{
		EngagementScore: src.Get("scores.engagement_score").Float(),
		ViralityScore:   src.Get("scores.virality_score").Float(),
		TrendingScore:   src.Get("scores.trending_score").Float(),
	}
	n.Author = model.AuthorSnapshot{
		UserID:            n.UserID,
		Username:          n.Username,
		DisplayName:       n.DisplayName,
		Followers:         src.Get("author.followers").Int(),
		Following:         src.Get("author.following").Int(),
		Reputation:        src.Get("author.reputation").Float(),
		VerificationLevel: model.VerificationLevel(src.Get("author.verification_level").String()),
		Verified:          src.Get("author.verified").Bool(),
		Suspended:         src.Get("author.suspended").Bool(),
	}
	return n
}

func decodeUser(src gjson.Result) model.User {
	var u model.User
	u.ID = src.Get("id").String()
	u.Username = src.Get("username").String()
	u.DisplayName = src.Get("display_name").String()
	u.Bio = src.Get("bio").String()
	u.AvatarURL = src.Get("avatar_url").String()
	u.VerificationLevel = model.VerificationLevel(src.Get("verification_level").String())
	u.FollowersCount = src.Get("followers_count").Int()
	u.FollowingCount = src.Get("following_count").Int()
	u.NotesCount = src.Get("notes_count").Int()
	u.Reputation = src.Get("reputation").Float()
	u.IsPrivate = src.Get("is_private").Bool()
	u.Searchable = src.Get("searchable").Bool()
	u.Indexable = src.Get("indexable").Bool()
	u.Status = model.UserStatus(src.Get("status").String())
	u.CreatedAt = decodeTimestamp(src.Get("created_at"))
	return u
}

func decodeHashtag(src gjson.Result, score float64) model.HashtagHit {
	return model.HashtagHit{
		Tag:      src.Get("tag").String(),
		Count:    src.Get("count").Int(),
		Score:    score,
		Trending: src.Get("trending").Bool(),
	}
}

// decodeTimestamp accepts either integer-seconds or integer-milliseconds
// epoch values, or an RFC3339 string, per §4.6.
func decodeTimestamp(v gjson.Result) time.Time {
	if v.Type == gjson.String {
		if t, err := time.Parse(time.RFC3339, v.String()); err == nil {
			return t
		}
		return time.Time{}
	}
	n := v.Int()
	if n == 0 {
		return time.Time{}
	}
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

// decodeHighlights flattens the backend's field → []fragment highlight map,
// stripping <em> markers used by the default highlighter.
func decodeHighlights(h gjson.Result) map[string][]string {
	if !h.Exists() {
		return nil
	}
	out := make(map[string][]string)
	h.ForEach(func(field, fragments gjson.Result) bool {
		var clean []string
		for _, f := range fragments.Array() {
			clean = append(clean, stripEmTags(f.String()))
		}
		out[field.String()] = clean
		return true
	})
	return out
}

func stripEmTags(s string) string {
	s = strings.ReplaceAll(s, "<em>", "")
	s = strings.ReplaceAll(s, "</em>", "")
	return s
}

func decodeAggregations(agg gjson.Result) model.Aggregations {
	if !agg.Exists() {
		return model.Aggregations{}
	}
	buckets := make(map[string][]model.AggregationBucket)
	agg.ForEach(func(name, body gjson.Result) bool {
		var bucketList []model.AggregationBucket
		for _, b := range body.Get("buckets").Array() {
			bucketList = append(bucketList, model.AggregationBucket{
				Key:   b.Get("key").String(),
				Count: b.Get("doc_count").Int(),
			})
		}
		if len(bucketList) > 0 {
			buckets[name.String()] = bucketList
		}
		return true
	})
	return model.Aggregations{Buckets: buckets}
}
