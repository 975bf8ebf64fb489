package query

import (
	"strconv"

	"github.com/sonet-social/search-service/internal/model"
)

// Document is the backend query document produced by Compile, per §4.5.
// It marshals directly to the JSON body posted to the index backend's
// _search endpoint.
type Document map[string]interface{}

// Compile translates a structured SearchQuery into a backend query
// document: bool query (must/filter/must_not/should), sort, pagination,
// projection, and highlighting.
func Compile(q model.SearchQuery) Document {
	boolQuery := Document{}

	if q.Text != "" {
		fuzziness := ""
		if q.Config.EnableFuzzyMatching {
			fuzziness = "AUTO"
		}
		multiMatch := Document{
			"query":     q.Text,
			"fields":    []string{"content^3", "author.username^2", "author.display_name^2", "hashtags^1.5", "mentions"},
			"type":      "best_fields",
			"operator":  "and",
		}
		if fuzziness != "" {
			multiMatch["fuzziness"] = fuzziness
		}
		boolQuery["must"] = []Document{{"multi_match": multiMatch}}
	} else {
		boolQuery["must"] = []Document{{"match_all": Document{}}}
	}

	if filters := compileFilters(q.Filters); len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if mustNot := compileMustNot(q.Filters); len(mustNot) > 0 {
		boolQuery["must_not"] = mustNot
	}
	if should := compileShould(q.Personalization); len(should) > 0 {
		boolQuery["should"] = should
	}

	var queryDoc Document
	if q.Sort == model.SortMixedSignals {
		queryDoc = Document{"function_score": compileFunctionScore(boolQuery, q.Config.Weights)}
	} else {
		queryDoc = Document{"bool": boolQuery}
	}

	doc := Document{
		"query": queryDoc,
		"from":  q.Pagination.Offset,
		"size":  q.Pagination.Limit,
		"sort":  compileSort(q.Sort),
		"highlight": Document{
			"fields": Document{
				"content":      Document{},
				"display_name": Document{},
			},
		},
	}

	if source := compileProjection(q.Type); source != nil {
		doc["_source"] = source
	}

	return doc
}

func compileFilters(f model.SearchFilters) []Document {
	var out []Document

	if !f.FromDate.IsZero() || !f.ToDate.IsZero() {
		rng := Document{}
		if !f.FromDate.IsZero() {
			rng["gte"] = f.FromDate.UnixMilli()
		}
		if !f.ToDate.IsZero() {
			rng["lte"] = f.ToDate.UnixMilli()
		}
		out = append(out, Document{"range": Document{"created_at": rng}})
	}

	if f.FromUser != "" {
		out = append(out, Document{"term": Document{"author.username.keyword": f.FromUser}})
	}
	for _, u := range f.MentionedUsers {
		out = append(out, Document{"term": Document{"mentions.username.keyword": u}})
	}
	for _, tag := range f.Hashtags {
		out = append(out, Document{"term": Document{"hashtags.keyword": tag}})
	}

	if f.HasMedia != nil {
		out = append(out, existsFilter("media", *f.HasMedia))
	}
	if f.HasLinks != nil {
		out = append(out, existsFilter("links", *f.HasLinks))
	}

	if f.VerifiedOnly {
		out = append(out, Document{"term": Document{"author.verified": true}})
	}
	if f.MinLikes > 0 {
		out = append(out, Document{"range": Document{"metrics.likes": Document{"gte": f.MinLikes}}})
	}
	if f.MinReposts > 0 {
		out = append(out, Document{"range": Document{"metrics.reposts": Document{"gte": f.MinReposts}}})
	}
	if f.MinReplies > 0 {
		out = append(out, Document{"range": Document{"metrics.replies": Document{"gte": f.MinReplies}}})
	}

	if f.GeoPlace != "" && f.GeoRadiusKM > 0 {
		out = append(out, Document{
			"geo_distance": Document{
				"distance": formatKM(f.GeoRadiusKM),
				"location": f.GeoPlace,
			},
		})
	}

	if f.Language != "" {
		out = append(out, Document{"term": Document{"language": f.Language}})
	}

	return out
}

// existsFilter returns an exists check on field when positive is true, and
// otherwise a bool query whose must_not holds that exists check. Both forms
// are placed in the filter clause by compileFilters.
func existsFilter(field string, positive bool) Document {
	if positive {
		return Document{"exists": Document{"field": field}}
	}
	return Document{"bool": Document{"must_not": Document{"exists": Document{"field": field}}}}
}

func compileMustNot(f model.SearchFilters) []Document {
	var out []Document
	for _, u := range f.ExcludedUsers {
		out = append(out, Document{"term": Document{"author.username.keyword": u}})
	}
	for _, tag := range f.ExcludedTags {
		out = append(out, Document{"term": Document{"hashtags.keyword": tag}})
	}
	return out
}

func compileShould(p model.PersonalizationContext) []Document {
	if p.IsAnonymous() {
		return nil
	}
	var out []Document
	if len(p.Following) > 0 {
		out = append(out, Document{
			"terms": Document{
				"author.username.keyword": p.Following,
				"boost":                   2.0,
			},
		})
	}
	for _, interest := range p.Interests {
		out = append(out, Document{
			"match": Document{
				"content": Document{
					"query": interest,
					"boost": 1.5,
				},
			},
		})
	}
	return out
}

func compileFunctionScore(boolQuery Document, weights model.QueryWeights) Document {
	return Document{
		"query": Document{"bool": boolQuery},
		"functions": []Document{
			{
				"field_value_factor": Document{
					"field":    "metrics.likes",
					"modifier": "log1p",
					"factor":   1,
				},
				"weight": weights.PopularityWeight,
			},
			{
				"gauss": Document{
					"created_at": Document{
						"scale": "7d",
						"decay": 0.5,
					},
				},
				"weight": weights.RecencyWeight,
			},
		},
		"score_mode": "sum",
		"boost_mode": "multiply",
	}
}

func compileSort(sort model.SortOrder) []Document {
	switch sort {
	case model.SortRecency:
		return []Document{{"created_at": Document{"order": "desc"}}}
	case model.SortPopularity:
		return []Document{
			{"metrics.engagement_score": Document{"order": "desc"}},
			{"_score": Document{"order": "desc"}},
		}
	case model.SortTrending:
		return []Document{
			{"trending_score": Document{"order": "desc"}},
			{"created_at": Document{"order": "desc"}},
		}
	case model.SortMixedSignals:
		return []Document{{"_score": Document{"order": "desc"}}}
	default: // relevance
		return []Document{{"_score": Document{"order": "desc"}}}
	}
}

func compileProjection(t model.SearchType) []string {
	switch t {
	case model.SearchTypeNotes, model.SearchTypeMedia, model.SearchTypeLive:
		return []string{"id", "content", "author", "hashtags", "mentions", "media", "links", "metrics", "scores", "created_at"}
	case model.SearchTypeUsers:
		return []string{"id", "username", "display_name", "bio", "avatar_url", "followers_count", "verification_level", "verified"}
	default:
		return nil
	}
}

func formatKM(km float64) string {
	return strconv.FormatFloat(km, 'g', -1, 64) + "km"
}
