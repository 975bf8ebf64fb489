// Package scoring implements the scorer (C3): pure functions computing
// engagement, virality, trending, reputation, bot-likelihood, and boost
// factors from a document's own fields plus the current time. Every score
// is deterministic given the same "now" — no hidden state, no I/O.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/sonet-social/search-service/internal/model"
)

// NoteEngagement computes the §4.3 engagement score for a note: a blend of
// log-dampened engagement rate, log-dampened absolute engagement, and
// reputation, clamped to [0,1].
func NoteEngagement(n *model.Note) float64 {
	if n == nil || n.Metrics.Views == 0 {
		return 0
	}
	totalEngagements := float64(n.Metrics.Total())
	engagementRate := totalEngagements / float64(n.Metrics.Views)

	scaledRate := math.Log1p(engagementRate*1000) / math.Log(1001)
	absoluteFactor := math.Log1p(totalEngagements) / math.Log(10001)
	userFactor := math.Min(1, n.Author.Reputation/100)

	return clamp01(scaledRate*0.6 + absoluteFactor*0.3 + userFactor*0.1)
}

// NoteVirality computes the §4.3 virality score: a blend of log-dampened
// engagement velocity, repost ratio, and follower reach.
func NoteVirality(n *model.Note, now time.Time) float64 {
	if n == nil {
		return 0
	}
	ageHours := now.Sub(n.CreatedAt).Hours()
	if ageHours < 1 {
		ageHours = 1
	}

	totalEngagements := float64(n.Metrics.Total())
	velocity := totalEngagements / ageHours

	var repostRatio float64
	if n.Metrics.Reposts > 0 && totalEngagements > 0 {
		repostRatio = float64(n.Metrics.Reposts) / totalEngagements
	}

	reachFactor := math.Log1p(float64(n.Author.Followers)) / math.Log(1_000_001)
	velocityScore := math.Log1p(velocity) / math.Log(1001)

	viralScore := velocityScore*0.5 + repostRatio*0.3 + reachFactor*0.2
	return clamp01(viralScore)
}

// NoteTrending computes the §4.3 trending score: recency decay blended with
// engagement, virality, and a simplified hashtag-popularity factor.
func NoteTrending(n *model.Note, now time.Time) float64 {
	if n == nil {
		return 0
	}
	ageHours := now.Sub(n.CreatedAt).Hours()
	recencyFactor := math.Exp(-ageHours / 24)

	engagement := NoteEngagement(n)
	virality := NoteVirality(n, now)

	hashtagFactor := 0.5
	if len(n.Hashtags) > 0 {
		hashtagFactor = 0.8
	}

	return clamp01(recencyFactor*0.4 + engagement*0.3 + virality*0.2 + hashtagFactor*0.1)
}

// ScoreNote fills a note's derived score bundle in place.
func ScoreNote(n *model.Note, now time.Time) {
	if n == nil {
		return
	}
	n.Scores.EngagementScore = NoteEngagement(n)
	n.Scores.ViralityScore = NoteVirality(n, now)
	n.Scores.TrendingScore = NoteTrending(n, now)
}

// reputation weight table, per §4.3.
const (
	wContentQuality  = 0.25
	wEngagement      = 0.20
	wNetworkQuality  = 0.15
	wTrust           = 0.15
	wInfluence       = 0.10
	wExpertise       = 0.10
	wActivity        = 0.05
)

// UserReputation computes the §4.3 weighted reputation blend, in [0,100].
func UserReputation(u *model.User, now time.Time) float64 {
	if u == nil {
		return 0
	}
	contentQuality := contentQualityComponent(u)
	engagementQuality := engagementQualityComponent(u)
	networkQuality := networkQualityComponent(u)
	trust := trustComponent(u)
	influence := influenceComponent(u)
	expertise := expertiseComponent(u)
	activity := activityConsistencyComponent(u, now)

	score := contentQuality*wContentQuality +
		engagementQuality*wEngagement +
		networkQuality*wNetworkQuality +
		trust*wTrust +
		influence*wInfluence +
		expertise*wExpertise +
		activity*wActivity

	return clampRange(score*100, 0, 100)
}

func contentQualityComponent(u *model.User) float64 {
	if u.NotesCount == 0 {
		return 0.3
	}
	likesPerNote := float64(u.LikesReceived) / float64(u.NotesCount)
	return clamp01(math.Log1p(likesPerNote) / math.Log(101))
}

func engagementQualityComponent(u *model.User) float64 {
	if u.FollowersCount == 0 {
		return 0.3
	}
	ratio := float64(u.LikesReceived) / float64(u.FollowersCount)
	return clamp01(math.Log1p(ratio*10) / math.Log(101))
}

func networkQualityComponent(u *model.User) float64 {
	if u.FollowingCount == 0 {
		return 0.5
	}
	ratio := float64(u.FollowersCount) / float64(max64(u.FollowingCount, 1))
	return clamp01(math.Log1p(ratio) / math.Log(1001))
}

func trustComponent(u *model.User) float64 {
	switch u.VerificationLevel {
	case model.VerificationOfficial:
		return 1.0
	case model.VerificationOrganization:
		return 0.8
	case model.VerificationBasic:
		return 0.6
	default:
		return 0.4
	}
}

func influenceComponent(u *model.User) float64 {
	return clamp01(math.Log1p(float64(u.FollowersCount)) / math.Log(1_000_001))
}

func expertiseComponent(u *model.User) float64 {
	if len(u.Bio) == 0 {
		return 0.3
	}
	return clamp01(float64(len(u.Bio)) / 300)
}

func activityConsistencyComponent(u *model.User, now time.Time) float64 {
	if u.LastActive.IsZero() {
		return 0
	}
	daysSince := now.Sub(u.LastActive).Hours() / 24
	return clamp01(1 - daysSince/30)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// BotLikelihood computes §4.3's additive bot-likelihood score from bio,
// username shape, follower:following skew, posting velocity, and profile
// completeness.
func BotLikelihood(u *model.User) float64 {
	if u == nil {
		return 0
	}
	score := 0.0

	if looksLikeBotUsername(u.Username) {
		score += 0.25
	}

	if len(strings.TrimSpace(u.Bio)) == 0 {
		score += 0.15
	}

	if u.FollowingCount > 0 {
		ratio := float64(u.FollowersCount) / float64(u.FollowingCount)
		if ratio < 0.01 && u.FollowingCount > 500 {
			score += 0.2
		}
	}

	if u.AvatarURL == "" {
		score += 0.1
	}

	if u.NotesCount > 0 && !u.CreatedAt.IsZero() {
		ageDays := time.Since(u.CreatedAt).Hours() / 24
		if ageDays > 0 {
			postsPerDay := float64(u.NotesCount) / ageDays
			if postsPerDay > 50 {
				score += 0.3
			}
		}
	}

	return clamp01(score)
}

func looksLikeBotUsername(username string) bool {
	if username == "" {
		return false
	}
	digits := 0
	for _, r := range username {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 5
}

// ScoreUser fills a user's reputation, bot-likelihood fields in place.
func ScoreUser(u *model.User, now time.Time) {
	if u == nil {
		return
	}
	u.Reputation = UserReputation(u, now)
	u.BotLikelihood = BotLikelihood(u)
	u.IsBotLikely = u.BotLikelihood >= 0.6
	u.Influence = influenceComponent(u)
	u.Authenticity = clamp01(1 - u.BotLikelihood)
}

// NoteBoosts computes the §4.3 multiplicative boost bundle for a note.
func NoteBoosts(n *model.Note, now time.Time) model.Boosts {
	if n == nil {
		return model.Boosts{Recency: 1, Engagement: 1, Author: 1, ContentQuality: 1}
	}
	ageHours := now.Sub(n.CreatedAt).Hours()
	recency := math.Exp(-ageHours / 48)
	if recency < 0.1 {
		recency = 0.1
	}

	engagement := 1 + n.Scores.EngagementScore
	author := 1 + verificationBoost(n.Author.VerificationLevel) + math.Log1p(float64(n.Author.Followers))/math.Log(1_000_001)*0.5
	quality := 0.5 + n.QualityScore

	return model.Boosts{
		Recency:        recency,
		Engagement:     engagement,
		Author:         author,
		ContentQuality: quality,
	}
}

func verificationBoost(level model.VerificationLevel) float64 {
	switch level {
	case model.VerificationOfficial:
		return 0.5
	case model.VerificationOrganization:
		return 0.3
	case model.VerificationBasic:
		return 0.15
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	return clampRange(v, 0, 1)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
