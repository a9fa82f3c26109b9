// Package extension mounts courier into a host application.
//
// An Extension owns a Courier built from a store and options, and exposes:
//   - Migrating the store on Init
//   - The plain net/http admin handler under a configurable prefix
//   - Forge route registration with OpenAPI metadata
//   - Starting the retry sweeper and stopping it gracefully
//   - A health check via store.Ping
//
// Usage:
//
//	ext := extension.New(
//	    extension.WithStore(pgStore),
//	    extension.WithPrefix("/admin/webhooks"),
//	)
//	if err := ext.Init(ctx); err != nil {
//	    return err
//	}
//	mux.Handle("/admin/webhooks/", ext.Handler())
//	ext.Start(ctx)
//	defer ext.Stop(ctx)
package extension
