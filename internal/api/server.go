package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/budsapp/buds-sync-core/internal/config"
	"github.com/budsapp/buds-sync-core/internal/jarsync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusSource is the read side of jarsync.Engine this router needs —
// narrowed so the HTTP layer doesn't depend on the engine's write path.
type StatusSource interface {
	Status(ctx context.Context, jarID string) (jarsync.Status, error)
}

func Router(cfg *config.Config, engine StatusSource) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ready")) })
	if cfg.Metrics.Enable {
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	}
	mux.HandleFunc("GET /v1/jars/{id}/status", jarStatusHandler(engine))
	return mux
}

func jarStatusHandler(engine StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jarID := r.PathValue("id")
		if jarID == "" {
			http.Error(w, "missing jar id", http.StatusBadRequest)
			return
		}
		st, err := engine.Status(r.Context(), jarID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}
