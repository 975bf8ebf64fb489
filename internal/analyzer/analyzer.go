// Package analyzer implements the content analyzer (C2): pure, deterministic,
// side-effect-free functions over a note's raw text. Nothing here performs
// network I/O or holds mutable state beyond the precompiled regex patterns.
package analyzer

import (
	"regexp"
	"strings"
	"unicode"
)

// hashtagPattern matches #word tokens across Latin, Latin-1 supplement,
// Cyrillic, and CJK blocks.
var hashtagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// mentionPattern matches @word tokens.
var mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9_]+)`)

// urlPattern matches http(s) URLs.
var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// mediaSuffixes are path extensions recognized as media links.
var mediaSuffixes = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".mp4", ".mov", ".webm"}

// mediaHosts is a fixed allowlist of media platforms whose links are always
// treated as media, regardless of path suffix.
var mediaHosts = map[string]bool{
	"pic.twitter.com": true,
	"imgur.com":       true,
	"i.imgur.com":     true,
	"youtube.com":     true,
	"youtu.be":        true,
	"vimeo.com":       true,
	"giphy.com":       true,
	"media.sonet.app": true,
}

// spamPatterns mirror the original engine's SPAM_PATTERNS.
var spamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:click here|buy now|limited time|act fast|guaranteed|free money|earn \$\d+)\b`),
	regexp.MustCompile(`(?i)\b(?:viagra|cialis|casino|lottery|winner|congratulations)\b`),
	regexp.MustCompile(`(?i)(?:https?://)?(?:bit\.ly|tinyurl|t\.co)/[a-zA-Z0-9]{6,}`),
	regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b`),
	regexp.MustCompile(`\$\d+(?:\.\d{2})?(?:\s*(?:per|/)\s*(?:hour|day|week|month))?`),
}

// nsfwPatterns mirror the original engine's NSFW_PATTERNS.
var nsfwPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:porn|xxx|nude|naked|sex|adult|18\+)\b`),
	regexp.MustCompile(`(?i)\b(?:fuck|shit|damn|hell|bitch|asshole)\b`),
	regexp.MustCompile(`(?i)\b(?:onlyfans|pornhub|xhamster|redtube)\b`),
}

// sensitivePatterns mirror the original engine's SENSITIVE_PATTERNS.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:suicide|depression|self-harm|cutting|overdose)\b`),
	regexp.MustCompile(`(?i)\b(?:terrorism|bomb|weapon|gun|violence)\b`),
	regexp.MustCompile(`(?i)\b(?:hate|racist|nazi|fascist|supremacist)\b`),
}

// topicKeywords is the fixed topic category table.
var topicKeywords = map[string][]string{
	"technology":    {"ai", "machine learning", "blockchain", "cryptocurrency", "programming", "software", "tech", "innovation"},
	"sports":        {"football", "basketball", "soccer", "baseball", "tennis", "olympics", "championship", "game", "match"},
	"politics":      {"election", "government", "policy", "democracy", "vote", "politician", "congress", "senate"},
	"entertainment": {"movie", "music", "celebrity", "hollywood", "netflix", "streaming", "concert", "album"},
	"science":       {"research", "study", "discovery", "experiment", "physics", "chemistry", "biology", "space"},
	"health":        {"fitness", "workout", "diet", "nutrition", "medical", "doctor", "hospital", "medicine"},
	"business":      {"startup", "entrepreneur", "investment", "stock", "market", "economy", "finance", "company"},
	"travel":        {"vacation", "trip", "tourism", "hotel", "flight", "destination", "adventure", "explore"},
	"food":          {"recipe", "cooking", "restaurant", "chef", "cuisine", "meal", "dinner", "lunch"},
	"education":     {"university", "college", "student", "teacher", "learning", "course", "degree", "scholarship"},
}

var positiveWords = map[string]bool{
	"good": true, "great": true, "awesome": true, "love": true, "excellent": true,
	"amazing": true, "happy": true, "wonderful": true, "fantastic": true, "best": true,
}

var negativeWords = map[string]bool{
	"bad": true, "terrible": true, "hate": true, "awful": true, "worst": true,
	"horrible": true, "sad": true, "angry": true, "disappointing": true, "poor": true,
}

// latinStopwords are a small per-language vote used only as a Latin-script
// tiebreaker when no non-Latin script dominates.
var latinStopwords = map[string][]string{
	"es": {"el", "la", "de", "que", "y", "en", "los", "por", "con", "para"},
	"fr": {"le", "la", "de", "et", "les", "des", "un", "une", "pour", "est"},
	"en": {"the", "and", "for", "that", "with", "this", "you", "are", "have"},
}

// Analysis is the full set of outputs the analyzer produces for a note.
type Analysis struct {
	Hashtags     []string
	Mentions     []string
	URLs         []string
	MediaURLs    []string
	Language     string
	QualityScore float64
	SpamScore    float64
	NSFW         bool
	Sensitive    bool
	Topics       []string
	Sentiment    string
}

// Analyze runs the full content-analysis pipeline over raw note text.
func Analyze(text string) Analysis {
	hashtags := ExtractHashtags(text)
	mentions := ExtractMentions(text)
	urls := ExtractURLs(text)
	media := filterMedia(urls)

	return Analysis{
		Hashtags:     hashtags,
		Mentions:     mentions,
		URLs:         urls,
		MediaURLs:    media,
		Language:     DetectLanguage(text),
		QualityScore: QualityScore(text, hashtags, urls),
		SpamScore:    SpamScore(text, urls),
		NSFW:         MatchesAny(text, nsfwPatterns),
		Sensitive:    MatchesAny(text, sensitivePatterns),
		Topics:       ExtractTopics(text),
		Sentiment:    Sentiment(text),
	}
}

// ExtractHashtags returns lowercased, deduplicated hashtags in first-seen order.
func ExtractHashtags(text string) []string {
	return extractTokens(hashtagPattern, text)
}

// ExtractMentions returns lowercased, deduplicated mentions in first-seen order.
func ExtractMentions(text string) []string {
	return extractTokens(mentionPattern, text)
}

func extractTokens(pattern *regexp.Regexp, text string) []string {
	matches := pattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		tok := strings.ToLower(m[1])
		if seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// ExtractURLs returns every http(s) URL found in text, in order.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

func filterMedia(urls []string) []string {
	var media []string
	for _, u := range urls {
		if isMediaURL(u) {
			media = append(media, u)
		}
	}
	return media
}

func isMediaURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, suffix := range mediaSuffixes {
		if strings.HasSuffix(strings.SplitN(lower, "?", 2)[0], suffix) {
			return true
		}
	}
	for host := range mediaHosts {
		if strings.Contains(lower, host) {
			return true
		}
	}
	return false
}

// DetectLanguage classifies text by Unicode script dominance, falling back to
// a small Latin stopword vote, defaulting to "en".
func DetectLanguage(text string) string {
	var cyrillic, cjk, arabic, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Han, r):
			cjk++
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}

	switch {
	case cyrillic > 0 && cyrillic >= cjk && cyrillic >= arabic:
		return "ru"
	case cjk > 0 && cjk >= arabic:
		return "zh"
	case arabic > 0:
		return "ar"
	}

	if latin > 0 {
		lowerWords := strings.Fields(strings.ToLower(text))
		best, bestCount := "en", 0
		for lang, stops := range latinStopwords {
			count := 0
			stopSet := make(map[string]bool, len(stops))
			for _, s := range stops {
				stopSet[s] = true
			}
			for _, w := range lowerWords {
				if stopSet[strings.Trim(w, ".,!?;:")] {
					count++
				}
			}
			if count > bestCount {
				best, bestCount = lang, count
			}
		}
		return best
	}

	return "en"
}

// QualityScore implements the §4.2 additive quality model, base 0.5.
func QualityScore(text string, hashtags, urls []string) float64 {
	score := 0.5
	length := len([]rune(text))

	switch {
	case length < 10:
		score -= 0.3
	case length > 2000:
		score -= 0.1
	case length > 280 && length < 1000:
		score += 0.2
	}

	hasCapital := false
	capsCount := 0
	punctCount := 0
	for _, r := range text {
		if unicode.IsUpper(r) {
			hasCapital = true
			capsCount++
		}
		if unicode.IsPunct(r) {
			punctCount++
		}
	}
	if hasCapital {
		score += 0.1
	}
	if length > 0 {
		capsRatio := float64(capsCount) / float64(length)
		if capsRatio > 0.5 {
			score -= 0.3
		}
		punctRatio := float64(punctCount) / float64(length)
		if punctRatio > 0.3 {
			score -= 0.2
		}
	}

	urlCount := len(urls)
	if urlCount == 1 {
		score += 0.1
	}
	if urlCount > 3 {
		score -= 0.3
	}

	if len(hashtags) > 5 {
		score -= 0.2
	}
	if len(hashtags) > 10 {
		score -= 0.3
	}

	return clamp01(score)
}

// SpamScore implements the §4.2 additive spam model, grounded on the
// original engine's calculate_spam_score (note_indexer.cpp).
func SpamScore(text string, urls []string) float64 {
	score := 0.0
	for _, p := range spamPatterns {
		if p.MatchString(text) {
			score += 0.3
		}
	}

	if len(urls) > 3 {
		score += 0.4
	}

	capsRatio := capsRatio(text)
	if capsRatio > 0.7 {
		score += 0.2
	}

	if strings.Count(text, "!") > 5 {
		score += 0.1
	}

	return clamp01(score)
}

func capsRatio(text string) float64 {
	length := len([]rune(text))
	if length == 0 {
		return 0
	}
	caps := 0
	for _, r := range text {
		if unicode.IsUpper(r) {
			caps++
		}
	}
	return float64(caps) / float64(length)
}

// MatchesAny reports whether any pattern in the set matches text.
func MatchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ExtractTopics emits a category whenever at least two of its keywords
// appear in the text, case-insensitively.
func ExtractTopics(text string) []string {
	lower := strings.ToLower(text)
	var topics []string
	for topic, keywords := range topicKeywords {
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				matches++
				if matches >= 2 {
					break
				}
			}
		}
		if matches >= 2 {
			topics = append(topics, topic)
		}
	}
	return topics
}

// Sentiment classifies text as positive/negative/neutral by keyword voting.
func Sentiment(text string) string {
	lower := strings.ToLower(text)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	pos, neg := 0, 0
	for _, w := range words {
		if positiveWords[w] {
			pos++
		}
		if negativeWords[w] {
			neg++
		}
	}

	switch {
	case pos > neg:
		return "positive"
	case neg > pos:
		return "negative"
	default:
		return "neutral"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
