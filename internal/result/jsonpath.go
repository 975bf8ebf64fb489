package result

import (
	"encoding/json"

	"github.com/PaesslerAG/jsonpath"
)

// ExtractPath runs an arbitrary JSONPath expression against a raw backend
// response, for bucket shapes that vary by aggregation type (terms vs.
// date_histogram vs. nested) where the fixed decode shape (see
// decodeAggregations) doesn't fit. Decode does not call it, and neither does
// the controller.
func ExtractPath(raw []byte, path string) (interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return jsonpath.Get(path, doc)
}
