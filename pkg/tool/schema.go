// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentcore/runtime/pkg/errs"
	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// SchemaFromStruct derives an InputSchema from a typed argument struct's
// field tags, for tools built around option (b) of spec.md §9's Design
// Notes (a compile-time-shaped schema derivation, as an alternative to
// hand-writing the schema map by hand — option (a), which remains the
// default path for tools that don't have a natural argument struct).
//
// Supported tags:
//   - json:"name" - parameter name
//   - json:",omitempty" - optional parameter
//   - jsonschema:"required" - explicitly mark as required
//   - jsonschema:"description=..." - parameter description
//   - jsonschema:"enum=val1|val2" - allowed values
//   - jsonschema:"minimum=N,maximum=M" - numeric constraints
func SchemaFromStruct[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))

	schemaMap, err := schemaToMap(schema)
	if err != nil {
		return nil, fmt.Errorf("convert schema to map: %w", err)
	}

	if schemaMap["type"] == "object" {
		result := map[string]any{
			"type":       "object",
			"properties": schemaMap["properties"],
		}
		if required := schemaMap["required"]; required != nil {
			result["required"] = required
		}
		if addProps, ok := schemaMap["additionalProperties"]; ok {
			result["additionalProperties"] = addProps
		}
		return result, nil
	}

	return schemaMap, nil
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	delete(result, "$schema")
	delete(result, "$id")

	return result, nil
}

// StructTool wraps a typed-argument function as a Tool, deriving its
// InputSchema from ArgsType via SchemaFromStruct rather than a hand-written
// schema map.
type StructTool[ArgsType any] struct {
	ToolName    string
	Desc        string
	Attrs       Attributes
	Run         func(ctx context.Context, args ArgsType, cancel <-chan struct{}) (Result, error)
	schema      map[string]any
	schemaErr   error
	schemaBuilt bool
}

func (s *StructTool[ArgsType]) Name() string           { return s.ToolName }
func (s *StructTool[ArgsType]) Description() string    { return s.Desc }
func (s *StructTool[ArgsType]) Attributes() Attributes { return s.Attrs }

// InputSchema lazily derives and caches the schema from ArgsType.
func (s *StructTool[ArgsType]) InputSchema() map[string]any {
	if !s.schemaBuilt {
		s.schema, s.schemaErr = SchemaFromStruct[ArgsType]()
		s.schemaBuilt = true
	}
	if s.schemaErr != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return s.schema
}

func (s *StructTool[ArgsType]) Descriptor() Descriptor {
	return Descriptor{Source: SourceBuiltin, Name: s.ToolName}
}

// Execute decodes args into ArgsType via mapstructure and invokes Run.
func (s *StructTool[ArgsType]) Execute(ctx context.Context, args map[string]any, cancel <-chan struct{}) (Result, error) {
	var typed ArgsType
	if err := mapstructure.Decode(args, &typed); err != nil {
		return Result{}, errs.ToolExecutionFailed(s.ToolName, "", err)
	}
	return s.Run(ctx, typed, cancel)
}
