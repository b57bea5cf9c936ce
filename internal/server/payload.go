package server

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed batch_schema.json
var batchSchemaJSON string

// ValidateBatchPayload checks a raw batch request against the JSON schema
// before any decoding, so malformed payloads are rejected with field-level
// messages instead of decode errors.
func ValidateBatchPayload(raw json.RawMessage) error {
	schemaLoader := gojsonschema.NewStringLoader(batchSchemaJSON)
	documentLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("validate batch payload: %w", err)
	}
	if result.Valid() {
		return nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, schemaErr := range result.Errors() {
		errs = append(errs, schemaErr.String())
	}
	sort.Strings(errs)

	return fmt.Errorf("batch payload validation failed: %s", strings.Join(errs, "; "))
}
