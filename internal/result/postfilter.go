package result

import (
	"sort"
	"strings"

	"github.com/sonet-social/search-service/internal/model"
)

// PostFilter applies §4.6/§4.8's post-processing rules in place: drop notes
// an anonymous viewer should not see (NSFW) or whose author is suspended,
// drop suspended/deleted users, and reorder the mixed vector by score.
func PostFilter(r *model.SearchResult, viewerAuthenticated bool) {
	if r == nil {
		return
	}

	notes := r.Notes[:0]
	for _, hit := range r.Notes {
		if hit.Note.Author.Suspended {
			continue
		}
		if hit.Note.NSFW && !viewerAuthenticated {
			continue
		}
		notes = append(notes, hit)
	}
	r.Notes = notes

	users := r.Users[:0]
	for _, hit := range r.Users {
		switch hit.User.Status {
		case model.UserStatusSuspended, model.UserStatusDeleted:
			continue
		}
		users = append(users, hit)
	}
	r.Users = users

	r.Mixed = rebuildMixed(r)
}

// FilterByPrefix narrows an already-decoded result down to hits whose
// matched field literally starts with prefix, case-insensitively: §4.8
// suggestions and autocomplete only ever surface completions of what the
// caller typed, not arbitrary relevance matches. Notes are matched on their
// text, users on username or display name.
func FilterByPrefix(r *model.SearchResult, prefix string) {
	if r == nil || prefix == "" {
		return
	}
	needle := strings.ToLower(prefix)

	notes := r.Notes[:0]
	for _, hit := range r.Notes {
		if strings.HasPrefix(strings.ToLower(hit.Note.Text), needle) {
			notes = append(notes, hit)
		}
	}
	r.Notes = notes

	users := r.Users[:0]
	for _, hit := range r.Users {
		if strings.HasPrefix(strings.ToLower(hit.User.Username), needle) ||
			strings.HasPrefix(strings.ToLower(hit.User.DisplayName), needle) {
			users = append(users, hit)
		}
	}
	r.Users = users

	r.Mixed = rebuildMixed(r)
}

// rebuildMixed recomputes the (type, index) vector against the filtered
// arrays and sorts it by score descending.
func rebuildMixed(r *model.SearchResult) []model.MixedEntry {
	entries := make([]model.MixedEntry, 0, len(r.Notes)+len(r.Users))
	for i, hit := range r.Notes {
		entries = append(entries, model.MixedEntry{Type: model.ResultTypeNote, Index: i, Score: hit.Score})
	}
	for i, hit := range r.Users {
		entries = append(entries, model.MixedEntry{Type: model.ResultTypeUser, Index: i, Score: hit.Score})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}
