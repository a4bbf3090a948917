package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PoolSnapshotter is the narrow view StartMetricsServer needs to back
// /readyz with live pool sizes, without this package importing
// internal/orchestrator.
type PoolSnapshotter interface {
	Snapshot() map[int64][]string
}

// StartMetricsServer exposes Prometheus metrics plus two liveness/readiness
// probes: /healthz (process up) and /readyz (pool snapshot, so an operator
// can tell an empty-but-alive pool apart from a dead process).
func StartMetricsServer(ctx context.Context, addr string, pool PoolSnapshotter, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		snapshot := pool.Snapshot()
		counts := make(map[string]int, len(snapshot))
		for fid, containers := range snapshot {
			counts[idLabel(fid)] = len(containers)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(counts)
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// watch for shutdown in the background so ListenAndServe below can block
	go func() {
		<-ctx.Done()
		logger.Info("shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}()

	logger.Info("starting metrics server", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func idLabel(functionID int64) string {
	return strconv.FormatInt(functionID, 10)
}
