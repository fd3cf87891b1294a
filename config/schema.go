package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/swaybar/errors"
)

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// Schema returns the embedded JSON schema for configuration files
func Schema() []byte {
	return append([]byte(nil), schemaJSON...)
}

// ValidateSchema checks a decoded configuration tree against the embedded
// schema. Every violation is listed in the returned error.
func ValidateSchema(doc map[string]any) error {
	s, err := compiledSchema()
	if err != nil {
		return errors.WrapFatal(err, "Config", "ValidateSchema", "schema compile")
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "ValidateSchema", "document encode")
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return errors.WrapInvalid(err, "Config", "ValidateSchema", "validation")
	}
	if result.Valid() {
		return nil
	}

	var b strings.Builder
	for _, desc := range result.Errors() {
		fmt.Fprintf(&b, "\n  - %s: %s", desc.Field(), desc.Description())
	}
	return errors.WrapInvalid(fmt.Errorf("%w: schema validation failed:%s", errors.ErrInvalidConfig, b.String()),
		"Config", "ValidateSchema", "validation")
}
