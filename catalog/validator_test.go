package catalog_test

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/xraph/courier/catalog"
)

var issueSchema = json.RawMessage(`{
	"type": "object",
	"required": ["issue_id", "title"],
	"properties": {
		"issue_id": {"type": "integer"},
		"title": {"type": "string", "minLength": 1},
		"labels": {"type": "array", "items": {"type": "string"}}
	}
}`)

func TestValidatorValidate(t *testing.T) {
	v := catalog.NewValidator()

	tests := []struct {
		name    string
		schema  any
		data    any
		wantErr bool
	}{
		{"nil schema accepts anything", nil, "whatever", false},
		{"valid issue", issueSchema, map[string]any{"issue_id": 42.0, "title": "Crash on save"}, false},
		{"extra fields allowed", issueSchema, map[string]any{"issue_id": 1.0, "title": "x", "priority": "high"}, false},
		{"missing title", issueSchema, map[string]any{"issue_id": 42.0}, true},
		{"fractional id", issueSchema, map[string]any{"issue_id": 4.2, "title": "x"}, true},
		{"empty title", issueSchema, map[string]any{"issue_id": 1.0, "title": ""}, true},
		{"bad label type", issueSchema, map[string]any{"issue_id": 1.0, "title": "x", "labels": []any{1.0}}, true},
		{"array payload", issueSchema, []any{"not", "an", "object"}, true},
		{"map schema", map[string]any{"type": "object"}, map[string]any{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.schema, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatorInvalidSchema(t *testing.T) {
	v := catalog.NewValidator()
	schema := json.RawMessage(`{"$ref": "#/$defs/missing"}`)

	if err := v.Validate(schema, map[string]any{}); err == nil {
		t.Fatal("expected compilation error for invalid schema")
	}
}

func TestValidatorConcurrentUse(t *testing.T) {
	v := catalog.NewValidator()
	payload := map[string]any{"issue_id": 7.0, "title": "Race"}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- v.Validate(issueSchema, payload)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent validate: %v", err)
		}
	}
}
