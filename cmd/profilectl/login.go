package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/profilekit/pkg/httpserver"
	"github.com/dmitrymomot/profilekit/svc/auth"
	"github.com/dmitrymomot/profilekit/svc/identity"
)

const callbackPath = "/callback"

// servesIdentity reports whether login hosts the verify endpoint itself.
// With in-memory identity storage the links can only be verified by the
// process that issued them.
func servesIdentity(cfg settings) bool {
	return cfg.Identity.Storage == backendMemory
}

// login requests a magic link that redirects to ln and completes sign-in
// with the first callback received there.
func (a *app) login(ctx context.Context, ln net.Listener, address string) error {
	redirect := "http://" + ln.Addr().String() + callbackPath
	callbacks := make(chan string, 1)

	r := chi.NewRouter()
	r.Get(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		select {
		case callbacks <- "http://" + r.Host + r.URL.RequestURI():
		default:
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Sign-in received. You can return to the terminal.\n"))
	})
	if servesIdentity(a.cfg) {
		r.Handle("/verify", identity.NewHandler(a.identity, identity.WithHandlerLogger(a.log)))
	}

	srvCtx, stop := context.WithCancel(ctx)
	defer stop()
	srv := httpserver.New(httpserver.WithLogger(a.log), httpserver.WithShutdownTimeout(time.Second))
	served := make(chan error, 1)
	go func() { served <- srv.Serve(srvCtx, ln, r) }()
	defer func() {
		stop()
		<-served
	}()

	if err := a.session.Start(ctx); err != nil {
		return err
	}
	if err := a.session.RequestMagicLink(ctx, address, auth.WithRedirect(redirect)); err != nil {
		return err
	}
	if pending, ok := a.gateway.PendingEmail(); ok {
		address = pending
	}
	fmt.Fprintf(a.out, "Magic link sent to %s. Open it on this machine to finish signing in.\n", address)
	if a.cfg.App.EmailBackend == backendDev {
		fmt.Fprintf(a.out, "Development emails are written to %s\n", a.cfg.Email.DevOutputDir)
	}

	wait := a.cfg.App.LoginTimeout
	if wait <= 0 {
		wait = 10 * time.Minute
	}
	timeout := time.NewTimer(wait)
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout.C:
		return fmt.Errorf("no sign-in within %s", wait)
	case rawURL := <-callbacks:
		state, err := a.session.ExchangeCallback(ctx, rawURL)
		if err != nil {
			return err
		}
		return a.print(state)
	}
}
