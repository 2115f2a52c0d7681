/*
Copyright 2024 SuiteSync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package mapper turns a normalized source record into target field data by
// evaluating a declarative per-field rule set.
package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RuleType is the closed set of mapping rule variants.
type RuleType string

const (
	RuleDirect     RuleType = "direct"
	RuleExpression RuleType = "expression"
	RuleTemplate   RuleType = "template"
	RuleConstant   RuleType = "constant"
	RuleReference  RuleType = "reference"
)

// Rule is one field-mapping instruction. The Type discriminator decides
// which of the variant fields is meaningful; Validate enforces that at
// decode time so a malformed mapping is rejected before any event uses it.
type Rule struct {
	Type RuleType `json:"type"`

	Source     string      `json:"source,omitempty"`     // direct, reference
	Expression string      `json:"expression,omitempty"` // expression
	Template   string      `json:"template,omitempty"`   // template
	Value      interface{} `json:"value,omitempty"`      // constant

	Transform     string        `json:"transform,omitempty"`
	TransformArgs []interface{} `json:"transform_args,omitempty"`
	Default       interface{}   `json:"default,omitempty"`

	// RefConnectionID lets a reference rule resolve through another
	// connection's id map. Empty means the event's own connection.
	RefConnectionID string `json:"ref_connection_id,omitempty"`
}

// Validate checks that the rule carries the fields its type requires.
func (r *Rule) Validate() error {
	switch r.Type {
	case RuleDirect:
		if r.Source == "" {
			return fmt.Errorf("direct rule requires a source path")
		}
	case RuleExpression:
		if r.Expression == "" {
			return fmt.Errorf("expression rule requires an expression")
		}
	case RuleTemplate:
		if r.Template == "" {
			return fmt.Errorf("template rule requires a template string")
		}
	case RuleConstant:
		// any value, including null, is allowed
	case RuleReference:
		if r.Source == "" {
			return fmt.Errorf("reference rule requires a source path")
		}
	default:
		return fmt.Errorf("unknown rule type: %q", r.Type)
	}
	return nil
}

// FieldMapping pairs a target field name with its rule.
type FieldMapping struct {
	Target string
	Rule   Rule
}

// FieldMap is the ordered field-map document. JSON objects lose ordering
// through map decoding, so it decodes via the token stream to preserve the
// author's declaration order.
type FieldMap []FieldMapping

// UnmarshalJSON decodes a {"target": {rule}, ...} object preserving key
// order and validating every rule.
func (fm *FieldMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("field map must be a JSON object")
	}

	var out FieldMap
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		target, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("field map key must be a string")
		}

		var rule Rule
		if err := dec.Decode(&rule); err != nil {
			return fmt.Errorf("field %q: %w", target, err)
		}
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("field %q: %w", target, err)
		}
		out = append(out, FieldMapping{Target: target, Rule: rule})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*fm = out
	return nil
}

// MarshalJSON writes the mappings back as an object in declaration order.
func (fm FieldMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range fm {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.Target)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.Rule)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParseFieldMap decodes and validates a stored field-map document.
func ParseFieldMap(raw json.RawMessage) (FieldMap, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("field map is empty")
	}
	var fm FieldMap
	if err := json.Unmarshal(raw, &fm); err != nil {
		return nil, err
	}
	return fm, nil
}
