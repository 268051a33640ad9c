package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/specialistvlad/biolockgo/internal/ctxlog"
)

// healthHandler answers liveness probes.
func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(app.ctx)
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

type stageStatus struct {
	Ordinal int    `json:"ordinal"`
	Name    string `json:"name"`
	State   string `json:"state"`
}

type pipelineStatus struct {
	RunID    string        `json:"run_id"`
	Pipeline string        `json:"pipeline"`
	Root     string        `json:"root,omitempty"`
	State    string        `json:"state"`
	Stages   []stageStatus `json:"stages"`
}

// statusHandler reports the marker state of the pipeline and each stage of
// the current plan.
func (app *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := pipelineStatus{
		RunID:    app.runID,
		Pipeline: app.model.Pipeline.Name,
		State:    "planning",
		Stages:   []stageStatus{},
	}

	if p := app.Plan(); p != nil {
		out.Root = p.Root
		st, err := app.store.PipelineState(ctx, p.Root)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out.State = st.String()
		for _, d := range p.Stages {
			st, err := app.store.StageState(ctx, d)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			out.Stages = append(out.Stages, stageStatus{Ordinal: d.Ordinal, Name: d.Name(), State: st.String()})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		ctxlog.FromContext(app.ctx).Error("Failed to encode status.", "error", err)
	}
}

// handler wires every endpoint the health check server exposes.
func (app *App) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", app.healthHandler)
	mux.HandleFunc("/status", app.statusHandler)
	mux.Handle("/metrics", app.metrics.Handler())
	return mux
}

// healthCheckServer initializes and runs the health check HTTP server.
func (app *App) healthCheckServer() {
	logger := ctxlog.FromContext(app.ctx)
	logger.Debug("Configuring health check server.")
	if app.config.HealthcheckPort <= 0 {
		logger.Warn("Health check server not started: disabled")
		return
	}

	addr := fmt.Sprintf(":%d", app.config.HealthcheckPort)
	app.httpServer = &http.Server{
		Addr:              addr,
		Handler:           app.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		// ListenAndServe returns ErrServerClosed on graceful shutdown.
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
}

func (app *App) closeHealthCheckServer() error {
	logger := ctxlog.FromContext(app.ctx)
	logger.Debug("Closing health check server...")

	if app.httpServer == nil {
		logger.Debug("Health check server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(app.ctx), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := app.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}

	logger.Debug("Health check server shut down gracefully.")
	return nil
}
