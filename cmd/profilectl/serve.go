package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/profilekit/pkg/httpserver"
	"github.com/dmitrymomot/profilekit/pkg/metrics"
	"github.com/dmitrymomot/profilekit/svc/identity"
)

// serve runs the identity endpoints, the metrics scrape endpoint and, for
// local media storage, the uploaded files.
func (a *app) serve(ctx context.Context, _ []string) error {
	srv := httpserver.NewFromConfig(a.cfg.HTTP, httpserver.WithLogger(a.log))
	return srv.Run(ctx, a.router())
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Mount("/", identity.NewHandler(a.identity,
		identity.WithHandlerLogger(a.log),
		identity.WithReadiness(a.checks...),
	))
	r.Handle(a.cfg.App.MetricsPath, metrics.Handler(a.registry))
	if a.cfg.App.MediaStorage == backendLocal {
		r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(a.cfg.App.MediaLocalDir))))
	}
	return r
}
