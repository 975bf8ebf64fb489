package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sonet-social/search-service/internal/model"
)

func TestParseTextExtractsOperators(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	text, filters := ParseText("from:@alice #coffee since:2d min_likes:50 latte", now)

	assert.Equal(t, "latte", text)
	assert.Equal(t, "alice", filters.FromUser)
	assert.Equal(t, []string{"coffee"}, filters.Hashtags)
	assert.Equal(t, int64(50), filters.MinLikes)
	assert.WithinDuration(t, now.Add(-48*time.Hour), filters.FromDate, time.Second)
}

func TestParseTextMentionsAreDeduped(t *testing.T) {
	_, filters := ParseText("hey @bob cc @bob and @carol", time.Now())
	assert.Equal(t, []string{"bob", "carol"}, filters.MentionedUsers)
}

func TestParseTextGeoAndLang(t *testing.T) {
	text, filters := ParseText(`near:"san francisco" within:10km lang:en weather`, time.Now())
	assert.Equal(t, "weather", text)
	assert.Equal(t, "san francisco", filters.GeoPlace)
	assert.Equal(t, 10.0, filters.GeoRadiusKM)
	assert.Equal(t, "en", filters.Language)
}

func TestParseTextAbsoluteDate(t *testing.T) {
	now := time.Now()
	_, filters := ParseText("since:2026-01-15 hello", now)
	assert.Equal(t, 2026, filters.FromDate.Year())
	assert.Equal(t, time.January, filters.FromDate.Month())
	assert.Equal(t, 15, filters.FromDate.Day())
}

func TestParseTextNoOperatorsLeavesTextIntact(t *testing.T) {
	text, filters := ParseText("just plain text", time.Now())
	assert.Equal(t, "just plain text", text)
	assert.True(t, filters.IsEmpty())
}

func TestBuildQueryProducesValidDefaults(t *testing.T) {
	q := BuildQuery("from:@alice hello", model.SearchTypeNotes, model.SortRelevance, time.Now())
	assert.True(t, q.Valid())
	assert.Equal(t, "hello", q.Text)
	assert.Equal(t, "alice", q.Filters.FromUser)
}
