package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sonet-social/search-service/internal/model"
)

func TestNotePriorityAccumulatesAdditively(t *testing.T) {
	now := time.Now()
	n := &model.Note{
		Author:    model.AuthorSnapshot{Verified: true},
		Scores:    model.DerivedScores{EngagementScore: 0.8, ViralityScore: 0.9},
		Hashtags:  []string{"coffee"},
		CreatedAt: now,
	}
	assert.Equal(t, 10+5+8+3+2, NotePriority(n, now))
}

func TestNotePriorityZeroForPlainOldNote(t *testing.T) {
	now := time.Now()
	n := &model.Note{CreatedAt: now.Add(-time.Hour)}
	assert.Equal(t, 0, NotePriority(n, now))
}

func TestUserPriorityOfficialVerified(t *testing.T) {
	now := time.Now()
	u := &model.User{
		VerificationLevel: model.VerificationOfficial,
		Reputation:        90,
		FollowersCount:    20000,
		UpdatedAt:         now,
	}
	assert.Equal(t, 15+8+5+3, UserPriority(u, now))
}

func TestUserPriorityUnverifiedLowFollowers(t *testing.T) {
	now := time.Now()
	u := &model.User{UpdatedAt: now.Add(-48 * time.Hour)}
	assert.Equal(t, 0, UserPriority(u, now))
}
