package webhook

// Input is the creation payload for a webhook.
type Input struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`

	// IsActive defaults to true.
	IsActive *bool `json:"is_active,omitempty"`

	// MaxRetries defaults to DefaultMaxRetries.
	MaxRetries *int `json:"max_retries,omitempty"`

	// TimeoutSeconds defaults to DefaultTimeoutSeconds.
	TimeoutSeconds *int `json:"timeout_seconds,omitempty"`

	RateLimit int               `json:"rate_limit,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// Update is a partial modification. Nil fields are left unchanged. A non-nil
// empty Events slice is rejected.
type Update struct {
	Name           *string           `json:"name,omitempty"`
	URL            *string           `json:"url,omitempty"`
	Secret         *string           `json:"secret,omitempty"`
	Events         []string          `json:"events,omitempty"`
	IsActive       *bool             `json:"is_active,omitempty"`
	MaxRetries     *int              `json:"max_retries,omitempty"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty"`
	RateLimit      *int              `json:"rate_limit,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// ListOpts configures pagination and filtering for webhook listing.
type ListOpts struct {
	Offset int
	Limit  int
	Active *bool
}
