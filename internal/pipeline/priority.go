package pipeline

import (
	"time"

	"github.com/sonet-social/search-service/internal/model"
)

// NotePriority computes the §4.4 additive priority for a note task.
func NotePriority(n *model.Note, now time.Time) int {
	if n == nil {
		return 0
	}
	p := 0
	if n.Author.Verified {
		p += 10
	}
	if n.Scores.EngagementScore >= 0.7 {
		p += 5
	}
	if n.Scores.ViralityScore >= 0.8 {
		p += 8
	}
	if now.Sub(n.CreatedAt) < 10*time.Minute {
		p += 3
	}
	if len(n.Hashtags) > 0 {
		p += 2
	}
	return p
}

// UserPriority computes the §4.4 additive priority for a user task.
func UserPriority(u *model.User, now time.Time) int {
	if u == nil {
		return 0
	}
	p := 0
	switch u.VerificationLevel {
	case model.VerificationOfficial:
		p += 15
	case model.VerificationOrganization:
		p += 10
	case model.VerificationBasic:
		p += 5
	}
	if u.Reputation >= 80 {
		p += 8
	}
	if u.FollowersCount >= 10000 {
		p += 5
	}
	if now.Sub(u.UpdatedAt) < time.Hour {
		p += 3
	}
	return p
}
