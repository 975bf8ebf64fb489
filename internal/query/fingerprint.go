package query

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/sonet-social/search-service/internal/model"
)

// Fingerprint computes the §4.5 cache-key: hash(text) ∥ type ∥ sort ∥
// offset ∥ limit ∥ hash(filters-json) ∥ optional viewer id. Two anonymous
// queries equivalent up to personalization share a key; a viewer id is
// folded in only when present, per invariant 7.
func Fingerprint(q model.SearchQuery) string {
	filtersJSON, _ := json.Marshal(q.Filters)

	h, _ := blake2b.New256(nil)
	h.Write([]byte(q.Text))
	h.Write([]byte{0})
	h.Write([]byte(q.Type))
	h.Write([]byte{0})
	h.Write([]byte(q.Sort))
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d:%d", q.Pagination.Offset, q.Pagination.Limit)
	h.Write([]byte{0})
	h.Write(filtersJSON)

	if !q.Personalization.IsAnonymous() {
		h.Write([]byte{0})
		h.Write([]byte("user:" + q.Personalization.ViewerID))
	}

	return hex.EncodeToString(h.Sum(nil))
}
