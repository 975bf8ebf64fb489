package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sonet-social/search-service/internal/model"
)

func TestNoteEngagementZeroViews(t *testing.T) {
	n := &model.Note{Metrics: model.EngagementMetrics{Views: 0}}
	assert.Equal(t, 0.0, NoteEngagement(n))
}

func TestNoteEngagementClampedToUnitRange(t *testing.T) {
	n := &model.Note{
		Metrics: model.EngagementMetrics{Likes: 10000, Reposts: 5000, Replies: 2000, Views: 100},
		Author:  model.AuthorSnapshot{Reputation: 100},
	}
	score := NoteEngagement(n)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestNoteViralityRecentHighFollowers(t *testing.T) {
	now := time.Now()
	n := &model.Note{
		CreatedAt: now.Add(-30 * time.Minute),
		Metrics:   model.EngagementMetrics{Likes: 100, Reposts: 50, Replies: 10},
		Author:    model.AuthorSnapshot{Followers: 100000},
	}
	score := NoteVirality(n, now)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestNoteTrendingDecaysWithAge(t *testing.T) {
	now := time.Now()
	recent := &model.Note{
		CreatedAt: now.Add(-1 * time.Hour),
		Metrics:   model.EngagementMetrics{Likes: 50, Views: 100},
	}
	old := &model.Note{
		CreatedAt: now.Add(-240 * time.Hour),
		Metrics:   model.EngagementMetrics{Likes: 50, Views: 100},
	}
	assert.Greater(t, NoteTrending(recent, now), NoteTrending(old, now))
}

func TestUserReputationInRange(t *testing.T) {
	u := &model.User{
		NotesCount:        100,
		LikesReceived:     5000,
		FollowersCount:    10000,
		FollowingCount:    200,
		VerificationLevel: model.VerificationOfficial,
		Bio:               "Engineer and writer.",
		LastActive:        time.Now().Add(-time.Hour),
	}
	rep := UserReputation(u, time.Now())
	assert.GreaterOrEqual(t, rep, 0.0)
	assert.LessOrEqual(t, rep, 100.0)
}

func TestBotLikelihoodFlagsHighVelocityAccount(t *testing.T) {
	u := &model.User{
		Username:       "user12345",
		FollowersCount: 2,
		FollowingCount: 5000,
		NotesCount:     10000,
		CreatedAt:      time.Now().Add(-10 * 24 * time.Hour),
	}
	score := BotLikelihood(u)
	assert.Greater(t, score, 0.5)
}

func TestScoreUserSetsDerivedFields(t *testing.T) {
	u := &model.User{Username: "normal_user", Bio: "hello", FollowersCount: 50, FollowingCount: 60}
	ScoreUser(u, time.Now())
	assert.GreaterOrEqual(t, u.Reputation, 0.0)
	assert.False(t, u.IsBotLikely)
}

func TestNoteBoostsNeutralForFreshVerifiedAuthor(t *testing.T) {
	now := time.Now()
	n := &model.Note{
		CreatedAt: now,
		Author:    model.AuthorSnapshot{VerificationLevel: model.VerificationOfficial, Followers: 1000},
	}
	boosts := NoteBoosts(n, now)
	assert.Greater(t, boosts.Author, 1.0)
	assert.InDelta(t, 1.0, boosts.Recency, 0.01)
}
