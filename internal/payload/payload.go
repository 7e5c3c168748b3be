// Package payload checks the kind-specific shape of annotation data.
package payload

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/ranking"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Validator holds one compiled schema per annotation kind.
type Validator struct {
	schemas map[models.AnnotationKind]*jsonschema.Schema
}

// NewValidator compiles the schema of every annotation kind
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	for kind, schema := range schemas {
		if err := compiler.AddResource(resourceName(kind), strings.NewReader(schema)); err != nil {
			return nil, fmt.Errorf("add schema for %s: %w", kind, err)
		}
	}

	v := &Validator{schemas: make(map[models.AnnotationKind]*jsonschema.Schema, len(schemas))}
	for kind := range schemas {
		compiled, err := compiler.Compile(resourceName(kind))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", kind, err)
		}
		v.schemas[kind] = compiled
	}
	return v, nil
}

func resourceName(kind models.AnnotationKind) string {
	return string(kind) + ".json"
}

// Normalize validates data against the schema for kind and returns the
// value to store. Ranking payloads are additionally checked as permutations
// bounded by rankingMax; the trimmed string and its integer order are stored.
func (v *Validator) Normalize(kind models.AnnotationKind, data map[string]any, rankingMax int) (map[string]any, error) {
	schema, ok := v.schemas[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported annotation kind %q", kind)
	}
	if data == nil {
		data = map[string]any{}
	}

	// Round-trip through JSON so numeric values have the types the schema
	// validator expects regardless of how the map was built.
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var normalized map[string]any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	if err := schema.Validate(normalized); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", kind, err)
	}

	if kind == models.KindRanking {
		value, _ := normalized["ranking"].(string)
		order, err := ranking.Validate(value, rankingMax)
		if err != nil {
			return nil, err
		}
		normalized["ranking"] = ranking.Format(order)
		normalized["order"] = order
	}

	return normalized, nil
}
