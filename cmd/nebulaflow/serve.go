package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the metrics endpoint until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, serve)
		},
	}
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serve runs the scheduler until a signal arrives. Scheduled runs in flight
// get ShutdownTimeout to finish before they are cancelled.
func serve(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	var metricsServer *http.Server
	if a.cfg.Metrics.Enabled {
		metricsServer = newMetricsServer(a.cfg.Metrics.Addr)
		go func() {
			a.logger.Info("metrics server started", zap.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRuns()

	sched := a.newScheduler()
	sched.SetRunContext(runCtx)

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	loopDone := make(chan error, 1)
	go func() { loopDone <- sched.Run(loopCtx) }()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		a.logger.Error("server failure", zap.Error(serveErr))
	case err := <-loopDone:
		loopDone <- err
	}
	stopLoop()
	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		serveErr = errors.Join(serveErr, err)
	}

	drained := make(chan struct{})
	go func() {
		sched.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(a.cfg.Engine.ShutdownTimeout):
		a.logger.Warn("shutdown timeout reached, cancelling runs", zap.Int("in_flight", sched.InFlight()))
		cancelRuns()
		<-drained
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return serveErr
}
