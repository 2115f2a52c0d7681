package mapper

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	byConn map[string]map[string]string
}

func (s *stubResolver) Resolve(_ context.Context, connectionID string, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range ids {
		if target, ok := s.byConn[connectionID][id]; ok {
			out[id] = target
		}
	}
	return out, nil
}

func newTestEngine() *Engine {
	return NewEngine(NewJQEvaluator(), &stubResolver{byConn: map[string]map[string]string{
		"conn_1": {"r7": "item_77", "r8": "item_88"},
	}})
}

func record(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestNormalizeRecord(t *testing.T) {
	payload := record(t, `{"record_id":"r1","data":{"record":{"title":"Widget"}}}`)
	rec := NormalizeRecord(payload)
	assert.Equal(t, "Widget", rec["title"])

	flat := record(t, `{"title":"Widget"}`)
	assert.Equal(t, "Widget", NormalizeRecord(flat)["title"])
}

func TestApplyDirectMapping(t *testing.T) {
	fm, err := ParseFieldMap(json.RawMessage(`{"name": {"type": "direct", "source": "$.title"}}`))
	require.NoError(t, err)

	payload := record(t, `{"record_id":"r1","data":{"title":"Widget"}}`)
	rec := NormalizeRecord(payload)

	res := newTestEngine().Apply(context.Background(), fm, rec, Context{ConnectionID: "conn_1"})
	assert.Empty(t, res.Warnings)
	assert.Equal(t, map[string]interface{}{"name": "Widget"}, res.FieldData)
}

func TestApplyTemplateConstantAndExpression(t *testing.T) {
	fm, err := ParseFieldMap(json.RawMessage(`{
		"summary": {"type": "template", "template": "{{title}} by {{author.name}}"},
		"kind":    {"type": "constant", "value": "product"},
		"tags":    {"type": "expression", "expression": "[.labels[].name]"}
	}`))
	require.NoError(t, err)

	rec := record(t, `{
		"title": "Widget",
		"author": {"name": "Ada"},
		"labels": [{"name": "new"}, {"name": "sale"}]
	}`)

	res := newTestEngine().Apply(context.Background(), fm, rec, Context{ConnectionID: "conn_1"})
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "Widget by Ada", res.FieldData["summary"])
	assert.Equal(t, "product", res.FieldData["kind"])
	assert.Equal(t, []interface{}{"new", "sale"}, res.FieldData["tags"])
}

func TestApplyReferenceMapping(t *testing.T) {
	fm, err := ParseFieldMap(json.RawMessage(`{
		"author":  {"type": "reference", "source": "$.author_id"},
		"related": {"type": "reference", "source": "$.related_ids"}
	}`))
	require.NoError(t, err)

	rec := record(t, `{"author_id": "r7", "related_ids": ["r7", "r8", "r9"]}`)

	res := newTestEngine().Apply(context.Background(), fm, rec, Context{ConnectionID: "conn_1"})
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "item_77", res.FieldData["author"])
	// unresolved r9 is dropped, not errored
	assert.Equal(t, []interface{}{"item_77", "item_88"}, res.FieldData["related"])
}

func TestApplyReferenceWithObjectIds(t *testing.T) {
	fm, err := ParseFieldMap(json.RawMessage(`{
		"author": {"type": "reference", "source": "$.author"}
	}`))
	require.NoError(t, err)

	rec := record(t, `{"author": {"id": "r7", "label": "Ada"}}`)
	res := newTestEngine().Apply(context.Background(), fm, rec, Context{ConnectionID: "conn_1"})
	assert.Equal(t, "item_77", res.FieldData["author"])
}

func TestApplyFailureBecomesWarning(t *testing.T) {
	fm, err := ParseFieldMap(json.RawMessage(`{
		"count": {"type": "direct", "source": "$.qty", "transform": "toNumber"},
		"name":  {"type": "direct", "source": "$.title"}
	}`))
	require.NoError(t, err)

	rec := record(t, `{"qty": "not a number", "title": "Widget"}`)
	res := newTestEngine().Apply(context.Background(), fm, rec, Context{ConnectionID: "conn_1"})

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Field 'count'")
	_, present := res.FieldData["count"]
	assert.False(t, present, "failed field must stay unset")
	assert.Equal(t, "Widget", res.FieldData["name"])
}

func TestApplyFailureFallsBackToDefault(t *testing.T) {
	fm, err := ParseFieldMap(json.RawMessage(`{
		"count": {"type": "direct", "source": "$.qty", "transform": "toNumber", "default": 0}
	}`))
	require.NoError(t, err)

	rec := record(t, `{"qty": "junk"}`)
	res := newTestEngine().Apply(context.Background(), fm, rec, Context{ConnectionID: "conn_1"})
	assert.Empty(t, res.Warnings)
	assert.Equal(t, float64(0), res.FieldData["count"])
}

func TestApplyNullUsesDefault(t *testing.T) {
	fm, err := ParseFieldMap(json.RawMessage(`{
		"status": {"type": "direct", "source": "$.missing", "default": "draft"},
		"empty":  {"type": "direct", "source": "$.also_missing"}
	}`))
	require.NoError(t, err)

	rec := record(t, `{"title": "Widget"}`)
	res := newTestEngine().Apply(context.Background(), fm, rec, Context{ConnectionID: "conn_1"})

	assert.Equal(t, "draft", res.FieldData["status"])
	_, present := res.FieldData["empty"]
	assert.False(t, present, "null results without defaults are omitted")
}

func TestGetNestedValue(t *testing.T) {
	rec := record(t, `{"a": {"b": [{"c": 42}]}, "top": "x"}`)

	assert.Equal(t, "x", GetNestedValue(rec, "top"))
	assert.Equal(t, "x", GetNestedValue(rec, "$.top"))
	assert.Equal(t, float64(42), GetNestedValue(rec, "a.b[0].c"))
	assert.Equal(t, float64(42), GetNestedValue(rec, "$.a.b.0.c"))
	assert.Nil(t, GetNestedValue(rec, "a.missing.c"))
	assert.Nil(t, GetNestedValue(rec, "a.b[5].c"))
}
