package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/orneryd/matrixgraph/pkg/index"
	"github.com/orneryd/matrixgraph/pkg/storage"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load a graph, build its indexes and serve metrics",
		Long: `Load the configured graph, populate its pending indexes in the background
and expose /metrics, /healthz and /stats on the metrics address until
interrupted.`,
		RunE: a.runServe,
	}
	cmd.Flags().String("address", "", "Listen address (default: metrics.address from config)")
	cmd.Flags().Bool("save-on-exit", true, "Save the graph when shutting down")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	addr := a.cfg.Metrics.Address
	if cmd.Flags().Changed("address") {
		addr, _ = cmd.Flags().GetString("address")
	}
	saveOnExit, _ := cmd.Flags().GetBool("save-on-exit")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	g, err := a.loadGraph(ctx, s, true)
	if err != nil {
		return err
	}
	reg := index.NewRegistry(g)
	pending := reg.Restore()

	ix := index.NewIndexer(g, reg, a.cfg.Index.Workers, index.Options{
		BatchSize: a.cfg.Index.BatchSize,
		Logger:    a.logger,
	})
	ix.Start(ctx)
	for _, idx := range pending {
		if err := ix.Submit(idx); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/stats", statsHandler(g))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	a.logger.Info("serving",
		"graph", g.Name(),
		"address", addr,
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
		"pending_indexes", len(pending),
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			ix.Stop()
			return fmt.Errorf("metrics server: %w", err)
		}
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("metrics server shutdown", "error", err)
	}
	ix.Stop()

	if !saveOnExit {
		return nil
	}
	if err := s.Save(shutdownCtx, g); err != nil {
		return fmt.Errorf("saving graph: %w", err)
	}
	a.logger.Info("graph saved", "graph", g.Name())
	return nil
}

func statsHandler(g *storage.Graph) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st, err := collectStats(g)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}
