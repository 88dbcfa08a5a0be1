package analysis

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	})
	return schema, schemaErr
}

// validate checks a JSON document against the result schema and describes
// every violation.
func validate(document string) []string {
	s, err := loadSchema()
	if err != nil {
		return []string{fmt.Sprintf("schema: %v", err)}
	}

	result, err := s.Validate(gojsonschema.NewStringLoader(document))
	if err != nil {
		return []string{fmt.Sprintf("document: %v", err)}
	}

	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		issues = append(issues, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return issues
}
