package catalog

import "encoding/json"

// Definition describes one event type a webhook can subscribe to.
type Definition struct {
	// Name is the dot-separated "<resource>.<action>" event name.
	Name string `json:"name"`

	// Description explains when the event fires.
	Description string `json:"description"`

	// Group is the resource the event belongs to ("issue", "project").
	Group string `json:"group,omitempty"`

	// Schema is a JSON Schema the emitted payload must satisfy.
	Schema json.RawMessage `json:"schema,omitempty"`
}

// objectSchema accepts any JSON object.
var objectSchema = json.RawMessage(`{"type":"object"}`)
