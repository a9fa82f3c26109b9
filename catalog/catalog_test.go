package catalog_test

import (
	"errors"
	"testing"

	"github.com/xraph/courier/catalog"
)

func TestIsSubscribable(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{catalog.IssueCreated, true},
		{catalog.IssueUpdated, true},
		{catalog.IssueAssigned, true},
		{catalog.IssueDeleted, true},
		{catalog.ProjectCreated, true},
		{catalog.ProjectUpdated, true},
		{catalog.TestPing, false},
		{"issue.*", false},
		{"Issue.Created", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := catalog.IsSubscribable(tt.name); got != tt.want {
				t.Fatalf("IsSubscribable(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestNamesSorted(t *testing.T) {
	names := catalog.Names()
	if len(names) != 6 {
		t.Fatalf("expected 6 names, got %d", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}

func TestCatalogGet(t *testing.T) {
	c := catalog.New()

	d, err := c.Get(catalog.TestPing)
	if err != nil {
		t.Fatal(err)
	}
	if d.Group != "test" {
		t.Fatalf("expected group 'test', got %q", d.Group)
	}

	_, err = c.Get("invoice.paid")
	if !errors.Is(err, catalog.ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestCatalogListExcludesTestPing(t *testing.T) {
	for _, d := range catalog.New().List() {
		if d.Name == catalog.TestPing {
			t.Fatal("List() must not include test.ping")
		}
	}
}

func TestCatalogValidatePayload(t *testing.T) {
	c := catalog.New()

	if err := c.ValidatePayload(catalog.IssueCreated, map[string]any{"id": 1.0}); err != nil {
		t.Fatalf("object payload should pass, got %v", err)
	}
	if err := c.ValidatePayload(catalog.IssueCreated, "a string"); err == nil {
		t.Fatal("expected error for non-object payload")
	}
	if err := c.ValidatePayload("nope", map[string]any{}); !errors.Is(err, catalog.ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}
