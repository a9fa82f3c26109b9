// Package catalog holds the closed set of event types webhooks may subscribe
// to, and validates emitted payloads against each type's schema.
package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// Subscribable event types.
const (
	IssueCreated   = "issue.created"
	IssueUpdated   = "issue.updated"
	IssueAssigned  = "issue.assigned"
	IssueDeleted   = "issue.deleted"
	ProjectCreated = "project.created"
	ProjectUpdated = "project.updated"
)

// TestPing is the event type of synthetic test deliveries. It is dispatched
// only on request and cannot be subscribed to.
const TestPing = "test.ping"

// ErrUnknownEventType is returned for event names outside the catalog.
var ErrUnknownEventType = errors.New("catalog: unknown event type")

var definitions = []Definition{
	{Name: IssueCreated, Group: "issue", Description: "An issue was created.", Schema: objectSchema},
	{Name: IssueUpdated, Group: "issue", Description: "An issue's fields changed.", Schema: objectSchema},
	{Name: IssueAssigned, Group: "issue", Description: "An issue was assigned to someone.", Schema: objectSchema},
	{Name: IssueDeleted, Group: "issue", Description: "An issue was deleted.", Schema: objectSchema},
	{Name: ProjectCreated, Group: "project", Description: "A project was created.", Schema: objectSchema},
	{Name: ProjectUpdated, Group: "project", Description: "A project's fields changed.", Schema: objectSchema},
}

var testPing = Definition{
	Name:        TestPing,
	Group:       "test",
	Description: "Synthetic delivery triggered from the admin surface.",
	Schema:      objectSchema,
}

// Catalog looks up event definitions and validates payloads.
type Catalog struct {
	byName    map[string]Definition
	validator *Validator
}

// New returns a Catalog over the built-in event types.
func New() *Catalog {
	byName := make(map[string]Definition, len(definitions)+1)
	for _, d := range definitions {
		byName[d.Name] = d
	}
	byName[testPing.Name] = testPing

	return &Catalog{
		byName:    byName,
		validator: NewValidator(),
	}
}

// IsSubscribable reports whether name may appear in a webhook's events.
func IsSubscribable(name string) bool {
	for _, d := range definitions {
		if d.Name == name {
			return true
		}
	}
	return false
}

// Names returns the subscribable event names in sorted order.
func Names() []string {
	names := make([]string, 0, len(definitions))
	for _, d := range definitions {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

// Get returns the definition for name, including test.ping.
func (c *Catalog) Get(name string) (Definition, error) {
	d, ok := c.byName[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownEventType, name)
	}
	return d, nil
}

// List returns the subscribable definitions sorted by name.
func (c *Catalog) List() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidatePayload checks payload against the schema of eventType.
func (c *Catalog) ValidatePayload(eventType string, payload any) error {
	d, err := c.Get(eventType)
	if err != nil {
		return err
	}
	if len(d.Schema) == 0 {
		return nil
	}
	return c.validator.Validate(d.Schema, payload)
}
