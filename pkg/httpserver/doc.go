// Package httpserver runs an http.Handler with configured timeouts and a
// bounded graceful shutdown.
//
// Run listens on the configured address; Serve accepts an existing listener,
// which lets callers bind an ephemeral loopback port first and read the
// address back:
//
//	ln, _ := net.Listen("tcp", "127.0.0.1:0")
//	srv := httpserver.New(httpserver.WithLogger(log))
//	go srv.Serve(ctx, ln, router)
//
// Both block until ctx is cancelled or Shutdown is called. HealthCheckHandler
// serves liveness and readiness probes.
package httpserver
