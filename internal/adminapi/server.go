// Package adminapi exposes a thin HTTP surface over the Registry: object and
// collection inspection, mutation, a long-poll event stream, Prometheus
// exposition, and a liveness probe.
package adminapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sapphire-kv/internal/fabric"
)

// ServerConfig contains tunables for the HTTP server.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates *http.Server wired to reg's admin routes. jwtSecret may
// be empty, in which case mutating routes run unauthenticated. staticRoot,
// if non-empty, is served at "/" behind the API routes, for a bundled
// dashboard frontend.
func NewServer(cfg ServerConfig, reg *fabric.Registry, jwtSecret, jwtIssuer, staticRoot string) *http.Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      newMux(reg, jwtSecret, jwtIssuer, staticRoot),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func newMux(reg *fabric.Registry, jwtSecret, jwtIssuer, staticRoot string) http.Handler {
	h := &handlers{reg: reg}
	auth := newAuthMiddleware(jwtSecret, jwtIssuer)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v0/collections", h.listCollections)
	mux.HandleFunc("GET /api/v0/collections/{name}", h.listCollectionObjects)
	mux.HandleFunc("GET /api/v0/collections/{name}/{id}", h.getObject)

	mux.HandleFunc("GET /api/v0/objects", h.listObjects)
	mux.HandleFunc("GET /api/v0/objects/{id}", h.getObjectByID)
	mux.Handle("PUT /api/v0/objects", auth(http.HandlerFunc(h.createObject)))
	mux.Handle("PUT /api/v0/objects/{id}", auth(http.HandlerFunc(h.replaceObject)))
	mux.Handle("PATCH /api/v0/objects/{id}", auth(http.HandlerFunc(h.patchObject)))
	mux.Handle("DELETE /api/v0/objects/{id}", auth(http.HandlerFunc(h.deleteObject)))

	mux.HandleFunc("GET /api/v0/events", h.events)

	if staticRoot != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticRoot)))
	}

	return mux
}
