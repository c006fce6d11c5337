package provider

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/qza666/v6relay/internal/auth"
	relayerr "github.com/qza666/v6relay/internal/errors"
	"github.com/qza666/v6relay/internal/headers"
	"github.com/qza666/v6relay/internal/logging"
	"github.com/qza666/v6relay/internal/metrics"
)

// Handler serves GET /provider/{name}?url=.
type Handler struct {
	Fetcher *Fetcher
	Auth    *auth.Authenticator
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logging.OrDiscard(h.Log)
	name := r.PathValue("name")

	p, ok := Lookup(name)
	if !ok {
		h.Metrics.ObserveProvider("unknown", http.StatusNotFound)
		http.Error(w, "unknown provider "+name, http.StatusNotFound)
		return
	}

	if h.Auth != nil {
		if err := h.Auth.Authenticate(r); err != nil {
			h.fail(w, name, err)
			return
		}
	}

	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		h.fail(w, name, relayerr.MissingURL())
		return
	}

	res, err := h.Fetcher.Fetch(r.Context(), p, target)
	if err != nil {
		log.Info("provider fetch failed", "provider", name, "err", err)
		if relayerr.KindOf(err) == relayerr.KindUnknown {
			err = relayerr.Upstream(p.Name, err)
		}
		h.fail(w, name, err)
		return
	}

	h.Metrics.ObserveProvider(name, res.Status)
	log.Debug("provider fetch", "provider", name, "status", res.Status, "bytes", len(res.Body))
	headers.CopyOutbound(w.Header(), res.Header)
	w.WriteHeader(res.Status)
	w.Write(res.Body)
}

func (h *Handler) fail(w http.ResponseWriter, name string, err error) {
	code := relayerr.Status(err)
	h.Metrics.ObserveProvider(name, code)
	http.Error(w, err.Error(), code)
}
