package webhook

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/xraph/courier/catalog"
)

// ValidationError indicates invalid webhook configuration.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "webhook validation: " + e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// normalize trims name and secret and collapses duplicate events in place.
func (w *Webhook) normalize() {
	w.Name = strings.TrimSpace(w.Name)
	w.Secret = strings.TrimSpace(w.Secret)
	w.URL = strings.TrimSpace(w.URL)

	seen := make(map[string]struct{}, len(w.Events))
	events := make([]string, 0, len(w.Events))
	for _, e := range w.Events {
		e = strings.TrimSpace(e)
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		events = append(events, e)
	}
	slices.Sort(events)
	w.Events = events
}

// Validate checks w against the registry rules. It returns the first
// *ValidationError found.
func (w *Webhook) Validate() error {
	switch {
	case w.Name == "":
		return invalid("name", "required")
	case len(w.Name) > maxNameLength:
		return invalid("name", "must be at most %d characters", maxNameLength)
	}

	if err := validateURL(w.URL); err != nil {
		return err
	}

	switch {
	case w.Secret == "":
		return invalid("secret", "required")
	case len(w.Secret) < minSecretLength:
		return invalid("secret", "must be at least %d characters", minSecretLength)
	case len(w.Secret) > maxSecretLength:
		return invalid("secret", "must be at most %d characters", maxSecretLength)
	}

	if len(w.Events) == 0 {
		return invalid("events", "at least one event type required")
	}
	for _, e := range w.Events {
		if !catalog.IsSubscribable(e) {
			return invalid("events", "unknown event type %q", e)
		}
	}

	if w.MaxRetries < 0 || w.MaxRetries > MaxRetriesLimit {
		return invalid("max_retries", "must be between 0 and %d", MaxRetriesLimit)
	}
	if w.TimeoutSeconds < MinTimeoutSeconds || w.TimeoutSeconds > MaxTimeoutSeconds {
		return invalid("timeout_seconds", "must be between %d and %d", MinTimeoutSeconds, MaxTimeoutSeconds)
	}
	if w.RateLimit < 0 {
		return invalid("rate_limit", "must not be negative")
	}

	for name := range w.Headers {
		if name == "" || len(name) > maxHeaderNameLength || strings.ContainsAny(name, " \t\r\n:") {
			return invalid("headers", "invalid header name %q", name)
		}
		if strings.ContainsAny(w.Headers[name], "\r\n") {
			return invalid("headers", "value of %q contains a line break", http.CanonicalHeaderKey(name))
		}
	}

	return nil
}

func validateURL(raw string) error {
	switch {
	case raw == "":
		return invalid("url", "required")
	case len(raw) > maxURLLength:
		return invalid("url", "must be at most %d characters", maxURLLength)
	case !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://"):
		return invalid("url", "must start with http:// or https://")
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return invalid("url", "invalid URL")
	}
	return nil
}
