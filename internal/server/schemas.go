package server

import (
	"io"
	"net/http"

	"github.com/xeipuuv/gojsonschema"

	"github.com/user/topleads/internal/apperr"
)

// Request body schemas. Bodies are small; every mutating route validates
// before decoding so malformed input fails with a named reason instead of a
// zero value.

var (
	thresholdBodySchema = mustSchema(`{
		"type": "object",
		"required": ["value"],
		"properties": {
			"value": {"type": "number"}
		},
		"additionalProperties": false
	}`)

	selectBodySchema = mustSchema(`{
		"type": "object",
		"properties": {
			"recordIds": {
				"type": "array",
				"minItems": 1,
				"maxItems": 200,
				"items": {"type": "string", "minLength": 1}
			}
		},
		"additionalProperties": false
	}`)

	exportLastBodySchema = mustSchema(`{
		"type": "object",
		"properties": {
			"at": {"type": ["string", "number"]}
		},
		"additionalProperties": false
	}`)
)

func mustSchema(raw string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(err)
	}
	return s
}

// readBody drains the request body. An empty body is legal for routes whose
// body is optional.
func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, apperr.BadValuef("reading request body: %v", err)
	}
	return raw, nil
}

// validateBody checks raw against schema, surfacing the first violation.
func validateBody(raw []byte, schema *gojsonschema.Schema) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return apperr.BadValuef("request body is not valid JSON: %v", err)
	}
	if !res.Valid() {
		return apperr.BadValuef("request body: %s", res.Errors()[0].String())
	}
	return nil
}
