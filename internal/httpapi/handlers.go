package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/train-seat-backend/internal/coordinator"
	"github.com/DoyleJ11/train-seat-backend/internal/inventory"
	"github.com/DoyleJ11/train-seat-backend/internal/summary"
)

// Snapshotter hands out one consistent copy of the train.
type Snapshotter interface {
	Snapshot() inventory.Train
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Summary handles GET /summary.
func Summary(src Snapshotter, unitPrice int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, summary.Summarize(src.Snapshot(), unitPrice))
	}
}

// Healthz reports liveness plus a few counters from the coordinator loop. A
// loop that does not answer within a second is reported as unavailable.
func Healthz(c *coordinator.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		v, err := c.View(ctx)
		if err != nil {
			log.Warn("healthz: coordinator unavailable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"version":   v.Version,
			"observers": v.NumClients,
			"holds":     v.NumHolds,
			"vacant":    v.Stats.Vacant,
			"locked":    v.Stats.Locked,
			"booked":    v.Stats.Booked,
		})
	}
}
