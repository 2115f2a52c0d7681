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

package mapper

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Evaluator runs a declarative query-language expression against a record.
// Injected so the engine is not bound to one expression library.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, record map[string]interface{}) (interface{}, error)
}

// ReferenceResolver maps source record ids to previously-synced target item
// ids for a connection. Unresolved ids are simply absent from the result.
type ReferenceResolver interface {
	Resolve(ctx context.Context, connectionID string, externalIDs []string) (map[string]string, error)
}

// Context carries the per-event inputs a rule may need beyond the record
// itself.
type Context struct {
	ConnectionID string
	ExternalID   string
}

// Result is the outcome of applying a full field map: the produced target
// field data plus any per-field warnings for rules that failed soft.
type Result struct {
	FieldData map[string]interface{}
	Warnings  []string
}

// Engine applies field maps. Safe for concurrent use.
type Engine struct {
	eval Evaluator
	refs ReferenceResolver
}

// NewEngine builds an engine with the given expression evaluator and
// reference resolver. Either may be nil, disabling the corresponding rule
// type with a clear error.
func NewEngine(eval Evaluator, refs ReferenceResolver) *Engine {
	return &Engine{eval: eval, refs: refs}
}

// NormalizeRecord unwraps the webhook envelope down to the record payload:
// a data wrapper, then a record wrapper, when present.
func NormalizeRecord(payload map[string]interface{}) map[string]interface{} {
	record := payload
	if data, ok := payload["data"].(map[string]interface{}); ok {
		record = data
	}
	if inner, ok := record["record"].(map[string]interface{}); ok {
		record = inner
	}
	return record
}

// Apply evaluates every rule in order. A failing rule falls back to its
// default when one exists, otherwise it is recorded as a warning and the
// field is left unset; the validator decides later whether that sinks the
// whole event. Null results are never written into the field data.
func (e *Engine) Apply(ctx context.Context, fieldMap FieldMap, record map[string]interface{}, mctx Context) Result {
	fieldData := make(map[string]interface{}, len(fieldMap))
	var warnings []string

	for _, m := range fieldMap {
		value, err := e.applyRule(ctx, m.Rule, record, mctx)
		if err != nil {
			if m.Rule.Default != nil {
				fieldData[m.Target] = m.Rule.Default
				continue
			}
			logrus.WithFields(logrus.Fields{
				"field": m.Target,
				"error": err.Error(),
			}).Warn("field mapping failed")
			warnings = append(warnings, fmt.Sprintf("Field '%s': %s", m.Target, err.Error()))
			continue
		}

		if value == nil {
			if m.Rule.Default != nil {
				fieldData[m.Target] = m.Rule.Default
			}
			continue
		}
		fieldData[m.Target] = value
	}

	return Result{FieldData: fieldData, Warnings: warnings}
}

func (e *Engine) applyRule(ctx context.Context, rule Rule, record map[string]interface{}, mctx Context) (interface{}, error) {
	var value interface{}
	var err error

	switch rule.Type {
	case RuleDirect:
		value = GetNestedValue(record, rule.Source)
	case RuleExpression:
		if e.eval == nil {
			return nil, fmt.Errorf("no expression evaluator configured")
		}
		value, err = e.eval.Evaluate(ctx, rule.Expression, record)
		if err != nil {
			return nil, err
		}
	case RuleTemplate:
		value = RenderTemplate(rule.Template, record)
	case RuleConstant:
		value = rule.Value
	case RuleReference:
		value, err = e.resolveReference(ctx, rule, record, mctx)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown rule type: %q", rule.Type)
	}

	if rule.Transform != "" && value != nil {
		value, err = ApplyTransform(rule.Transform, value, rule.TransformArgs...)
		if err != nil {
			return nil, err
		}
	}

	return value, nil
}

// resolveReference looks up one or many source ids through the id map.
// A scalar source yields a scalar result (nil when unresolved); an array
// source yields an array with unresolved entries dropped.
func (e *Engine) resolveReference(ctx context.Context, rule Rule, record map[string]interface{}, mctx Context) (interface{}, error) {
	if e.refs == nil {
		return nil, fmt.Errorf("no reference resolver configured")
	}

	raw := GetNestedValue(record, rule.Source)
	if raw == nil {
		return nil, nil
	}

	connectionID := mctx.ConnectionID
	if rule.RefConnectionID != "" {
		connectionID = rule.RefConnectionID
	}

	arr, isArray := raw.([]interface{})
	if !isArray {
		arr = []interface{}{raw}
	}

	ids := make([]string, 0, len(arr))
	for _, entry := range arr {
		// reference fields may carry either bare ids or {"id": ...} objects
		if obj, ok := entry.(map[string]interface{}); ok {
			entry = obj["id"]
		}
		if id := toString(entry); id != "" {
			ids = append(ids, id)
		}
	}

	resolved, err := e.refs.Resolve(ctx, connectionID, ids)
	if err != nil {
		return nil, err
	}

	if isArray {
		out := make([]interface{}, 0, len(ids))
		for _, id := range ids {
			if target, ok := resolved[id]; ok {
				out = append(out, target)
			}
		}
		return out, nil
	}

	if len(ids) == 1 {
		if target, ok := resolved[ids[0]]; ok {
			return target, nil
		}
	}
	return nil, nil
}

// GetNestedValue reads a dotted/indexed path out of decoded JSON. An
// optional "$." prefix is stripped; bracketed indexes like items[0] address
// array elements. Missing segments yield nil.
func GetNestedValue(obj interface{}, path string) interface{} {
	clean := strings.TrimPrefix(path, "$.")

	keys := strings.FieldsFunc(clean, func(r rune) bool {
		return r == '.' || r == '[' || r == ']'
	})

	current := obj
	for _, key := range keys {
		if current == nil {
			return nil
		}
		if idx, err := strconv.Atoi(key); err == nil {
			arr, ok := current.([]interface{})
			if !ok || idx < 0 || idx >= len(arr) {
				return nil
			}
			current = arr[idx]
			continue
		}
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}
