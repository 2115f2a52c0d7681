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
	"sync"

	"github.com/itchyny/gojq"
)

// JQEvaluator evaluates expression rules as jq programs. Compiled programs
// are cached since mappings repeat the same expressions for every event.
type JQEvaluator struct {
	mu    sync.Mutex
	cache map[string]*gojq.Code
}

// NewJQEvaluator returns an evaluator with an empty program cache.
func NewJQEvaluator() *JQEvaluator {
	return &JQEvaluator{cache: make(map[string]*gojq.Code)}
}

// Evaluate compiles (or reuses) the expression and returns its first
// result. Multiple results collapse to the first one; no result is nil.
func (e *JQEvaluator) Evaluate(ctx context.Context, expression string, record map[string]interface{}) (interface{}, error) {
	code, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, map[string]interface{}(record))
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, isErr := v.(error); isErr {
		return nil, fmt.Errorf("expression failed: %w", err)
	}
	return v, nil
}

func (e *JQEvaluator) compile(expression string) (*gojq.Code, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if code, ok := e.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	e.cache[expression] = code
	return code, nil
}
