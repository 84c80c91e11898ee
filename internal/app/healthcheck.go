package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/specialistvlad/livebind/internal/async"
	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/tree"
)

const renderTimeout = 5 * time.Second

// healthHandler reports the engine's counters as JSON.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(a.Stats()); err != nil {
		a.logger.Warn("Failed to write health response.", "error", err)
	}
}

// documentHandler renders the live document. Rendering is posted to the
// queue so it never races with the engine.
func (a *App) documentHandler(queue *async.Queue, doc *tree.Document) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		rendered := make(chan []byte, 1)
		queue.Post(func() {
			var buf bytes.Buffer
			if err := tree.RenderHTML(&buf, doc.Root()); err != nil {
				a.logger.Error("Failed to render document.", "error", err)
				rendered <- nil
				return
			}
			rendered <- buf.Bytes()
		})

		select {
		case body := <-rendered:
			if body == nil {
				http.Error(w, "render failed", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write(body)
		case <-ctx.Done():
			http.Error(w, "engine busy", http.StatusServiceUnavailable)
		}
	}
}

// runHealthcheckServer serves /health and /document until ctx is done, then
// shuts the server down gracefully.
func (a *App) runHealthcheckServer(ctx context.Context, queue *async.Queue, doc *tree.Document) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring health check server.")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.Handle("/document", a.documentHandler(queue, doc))

	addr := fmt.Sprintf(":%d", a.config.HealthcheckPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("health check server: %w", err)
	}
	srv := &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("Health check server failed unexpectedly", "error", err)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("🩺 Shutting down health check server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}
	logger.Debug("Health check server shut down gracefully.")
	return ctx.Err()
}
