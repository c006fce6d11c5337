// Package server wires the HTTP handlers into listeners and runs them until
// the context is cancelled.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/qza666/v6relay/internal/logging"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// Routes are the handlers served on the relay listener. Nil handlers are
// not registered, except Relay which is required.
type Routes struct {
	Relay    http.Handler
	Provider http.Handler
	Metrics  http.Handler
}

// NewMux registers routes behind the CORS middleware. Every path that is not
// a provider or metrics path reaches the relay.
func NewMux(r Routes) http.Handler {
	mux := http.NewServeMux()
	if r.Metrics != nil {
		mux.Handle("GET /metrics", r.Metrics)
	}
	if r.Provider != nil {
		mux.Handle("GET /provider/{name}", r.Provider)
	}
	mux.Handle("/", r.Relay)
	return CORS(mux)
}

// New returns an http.Server with the timeouts used for every listener.
// WriteTimeout is left unset so tunnels and slow upstreams are bounded by
// their own deadlines.
func New(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Run serves every server until ctx is done or one of them fails, then
// shuts all of them down.
func Run(ctx context.Context, log *slog.Logger, servers ...*http.Server) error {
	log = logging.OrDiscard(log)
	errc := make(chan error, len(servers))

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errc:
		log.Error("listener failed", "err", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if serr := srv.Shutdown(sctx); serr != nil {
			log.Warn("shutdown", "addr", srv.Addr, "err", serr)
		}
	}
	wg.Wait()
	return err
}
