package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHashtagsDedupesAndLowercases(t *testing.T) {
	got := ExtractHashtags("Loving #Coffee and #COFFEE this morning, also #tea")
	assert.Equal(t, []string{"coffee", "tea"}, got)
}

func TestExtractMentions(t *testing.T) {
	got := ExtractMentions("hey @Alice cc @bob and @Alice again")
	assert.Equal(t, []string{"alice", "bob"}, got)
}

func TestExtractURLsAndMedia(t *testing.T) {
	text := "check this https://example.com/photo.jpg and https://example.com/page"
	urls := ExtractURLs(text)
	assert.Len(t, urls, 2)
	media := filterMedia(urls)
	assert.Equal(t, []string{"https://example.com/photo.jpg"}, media)
}

func TestDetectLanguageCyrillic(t *testing.T) {
	assert.Equal(t, "ru", DetectLanguage("Привет, как дела?"))
}

func TestDetectLanguageDefaultEnglish(t *testing.T) {
	assert.Equal(t, "en", DetectLanguage("hello there friend"))
}

func TestQualityScoreShortContentPenalized(t *testing.T) {
	score := QualityScore("hi", nil, nil)
	assert.Less(t, score, 0.5)
}

func TestQualityScoreClampedToUnitRange(t *testing.T) {
	hashtags := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}
	score := QualityScore("SHORT", hashtags, nil)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestSpamScoreDetectsPromoPhrase(t *testing.T) {
	score := SpamScore("Click here to claim guaranteed free money now", nil)
	assert.Greater(t, score, 0.0)
}

func TestSpamScoreManyURLs(t *testing.T) {
	urls := []string{"https://a.com", "https://b.com", "https://c.com", "https://d.com"}
	score := SpamScore("check these out", urls)
	assert.GreaterOrEqual(t, score, 0.4)
}

func TestQualityScoreBonusOnlyInMidRange(t *testing.T) {
	mid := QualityScore(strings.Repeat("a", 500), nil, nil)
	long := QualityScore(strings.Repeat("a", 1500), nil, nil)
	assert.Greater(t, mid, long)
}

func TestSpamScoreAccumulatesAcrossAllMatchingPatterns(t *testing.T) {
	text := "Click here to claim your lottery winner free money now, guaranteed"
	matches := 0
	for _, p := range spamPatterns {
		if p.MatchString(text) {
			matches++
		}
	}
	require.GreaterOrEqual(t, matches, 2)
	score := SpamScore(text, nil)
	assert.InDelta(t, 0.3*float64(matches), score, 1e-9)
}

func TestExtractTopicsRequiresTwoKeywords(t *testing.T) {
	topics := ExtractTopics("I love programming and software innovation")
	assert.Contains(t, topics, "technology")
}

func TestExtractTopicsNoMatchBelowThreshold(t *testing.T) {
	topics := ExtractTopics("I love programming")
	assert.NotContains(t, topics, "technology")
}

func TestSentimentPositive(t *testing.T) {
	assert.Equal(t, "positive", Sentiment("this is great and awesome"))
}

func TestSentimentNegative(t *testing.T) {
	assert.Equal(t, "negative", Sentiment("this is terrible and awful"))
}

func TestSentimentNeutral(t *testing.T) {
	assert.Equal(t, "neutral", Sentiment("the weather today is mild"))
}

func TestAnalyzeProducesFullBundle(t *testing.T) {
	result := Analyze("Loving the new #AI breakthroughs, cc @bob https://example.com")
	assert.Equal(t, []string{"ai"}, result.Hashtags)
	assert.Equal(t, []string{"bob"}, result.Mentions)
	assert.Equal(t, "en", result.Language)
	assert.False(t, result.NSFW)
}
