package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"thumbcache/internal/browser"
	"thumbcache/internal/handlers"
	"thumbcache/internal/logging"
	"thumbcache/internal/memory"
	"thumbcache/internal/metrics"
	"thumbcache/internal/middleware"
	"thumbcache/internal/startup"
)

const (
	collectInterval = 15 * time.Second
	shutdownTimeout = 30 * time.Second
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve previews, path resolution and ratings over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().Int("workers", 0, "concurrent decoders per run (0 sizes from CPU count)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	startTime := time.Now()
	cfg := a.cfg

	startup.LogConfig(cfg)
	startup.LogMemoryConfig(a.memory)
	a.startCodec()
	startup.LogCodecInit(cfg.FFmpegPath)

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	defer monitor.Stop()

	svc, err := a.service(monitor)
	if err != nil {
		return err
	}
	defer svc.Close()

	collector := metrics.NewCollector(svc, collectInterval)
	collector.Start()
	defer collector.Stop()

	router := setupRouter(handlers.New(svc, cfg.Root), cfg.MetricsEnabled)
	startup.LogHTTPRoutes(router)

	var handler http.Handler = router
	if cfg.LogHTTPRequests {
		handler = middleware.Logger(middleware.DefaultLoggingConfig())(router)
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go handleShutdown(ctx, srv, svc, shutdownDone)

	startup.LogServerStarted(startup.ServerConfig{
		Addr:            cfg.ListenAddr,
		MetricsEnabled:  cfg.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	return nil
}

func setupRouter(h *handlers.Handlers, metricsEnabled bool) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	if metricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	}
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/preview", h.GetPreview).Methods("GET", "HEAD")
	api.HandleFunc("/resolve", h.ResolvePath).Methods("GET")
	api.HandleFunc("/rating", h.SetRating).Methods("POST")
	api.HandleFunc("/warm", h.Warm).Methods("POST")
	api.HandleFunc("/purge", h.Purge).Methods("POST")

	return r
}

func handleShutdown(ctx context.Context, srv *http.Server, svc *browser.Service, done chan<- struct{}) {
	defer close(done)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	reason := "context cancellation"
	if ctx.Err() == nil {
		reason = "signal"
	}
	startup.LogShutdownInitiated(reason)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Cancelling pipeline runs")
	if err := svc.Close(); err != nil {
		logging.Warn("Service close error: %v", err)
	}
	startup.LogShutdownStepComplete("Pipeline runs cancelled")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
