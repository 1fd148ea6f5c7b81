// Package shutdown handles termination signals for the admin sidecar.
//
// Wait blocks until SIGINT or SIGTERM arrives (or the context ends), then
// runs the registered hooks in reverse order. Hooks only release local
// resources such as the config watcher: open connections are not drained
// and the monitored service is left running.
//
// Usage:
//
//	h := shutdown.NewHandler(5*time.Second, shutdown.WithLogger(log))
//	h.OnShutdown(func(ctx context.Context) error { return watcher.Stop() })
//	sig, err := h.Wait(ctx)
package shutdown
