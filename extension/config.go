package extension

import (
	"strings"

	"github.com/xraph/courier"
)

// Config holds configuration for the courier extension.
type Config struct {
	// Config embeds the engine configuration.
	courier.Config

	// BasePath is the URL prefix for the admin routes (default: "/webhooks-admin").
	BasePath string

	// DisableRoutes turns Handler into a 404 responder and makes
	// RegisterRoutes a no-op.
	DisableRoutes bool

	// DisableMigrate skips store migration in Init.
	DisableMigrate bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Config:   courier.DefaultConfig(),
		BasePath: "/webhooks-admin",
	}
}

// prefix returns BasePath without a trailing slash. An empty result mounts
// at the root.
func (c Config) prefix() string {
	return strings.TrimRight(c.BasePath, "/")
}
