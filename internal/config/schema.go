// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GuildGate Contributors

package config

import (
	_ "embed"
	"encoding/json"
	"os"
	"sync"

	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

// SchemaJSON returns the embedded configuration schema. Callers must
// not modify the returned slice.
func SchemaJSON() []byte {
	return schemaJSON
}

var (
	schemaOnce sync.Once
	schema     *jschema.Schema
	schemaErr  error
)

// ValidateFile validates a YAML config file against the embedded schema.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}
	return Validate(data)
}

// Validate validates raw YAML config data against the embedded schema.
func Validate(data []byte) error {
	var yamlData any
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		return oops.Code("CONFIG_INVALID_YAML").Wrap(err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	if err := sch.Validate(toJSONTypes(yamlData)); err != nil {
		return oops.Code("CONFIG_SCHEMA_VIOLATION").Wrap(err)
	}
	return nil
}

// compiledSchema compiles the embedded schema once.
func compiledSchema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		var schemaData any
		if err := json.Unmarshal(schemaJSON, &schemaData); err != nil {
			schemaErr = oops.Code("CONFIG_SCHEMA_INVALID").
				With("operation", "parse embedded schema").
				Wrap(err)
			return
		}

		c := jschema.NewCompiler()
		if err := c.AddResource("schema.json", schemaData); err != nil {
			schemaErr = oops.Code("CONFIG_SCHEMA_INVALID").
				With("operation", "add schema resource").
				Wrap(err)
			return
		}
		schema, schemaErr = c.Compile("schema.json")
		if schemaErr != nil {
			schemaErr = oops.Code("CONFIG_SCHEMA_INVALID").
				With("operation", "compile schema").
				Wrap(schemaErr)
		}
	})
	return schema, schemaErr
}

// toJSONTypes converts YAML-parsed data to JSON-compatible types for
// schema validation. YAML mappings already use string keys; nested
// structures are walked recursively.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, inner := range val {
			result[k] = toJSONTypes(inner)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, inner := range val {
			result[i] = toJSONTypes(inner)
		}
		return result
	case string, int, int64, float64, bool, nil:
		return val
	default:
		if b, err := json.Marshal(val); err == nil {
			var result any
			if err := json.Unmarshal(b, &result); err == nil {
				return result
			}
		}
		return val
	}
}
