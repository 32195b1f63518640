package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/absmach/hivemon/monitor"
)

const contentType = "application/json"

type healthRes struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	InstanceID string `json:"instance_id"`
}

// MakeHandler exposes the monitor's read-only surface: liveness, current
// status, and Prometheus metrics.
func MakeHandler(svc monitor.Service, gatherer prometheus.Gatherer, logger *slog.Logger, svcName, instanceID string) http.Handler {
	mux := chi.NewRouter()

	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		encodeResponse(w, http.StatusOK, healthRes{
			Status:     "pass",
			Service:    svcName,
			InstanceID: instanceID,
		}, logger)
	})

	mux.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Status(r.Context())
		if err != nil {
			encodeResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()}, logger)

			return
		}
		encodeResponse(w, http.StatusOK, st, logger)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}

func encodeResponse(w http.ResponseWriter, code int, payload any, logger *slog.Logger) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("Failed to encode response", slog.Any("error", err))
	}
}
