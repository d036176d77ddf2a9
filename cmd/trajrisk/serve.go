package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"trajrisk/internal/metrics"
	"trajrisk/internal/ml"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve risk scores over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		m := metrics.New()
		scorer, err := ml.LoadScorer(settings.ModelDir, settings.Family, metrics.NewWrapper(m))
		if err != nil {
			return err
		}

		if mm, err := ml.NewModelManager(settings.ModelDir); err != nil {
			log.Warn().Err(err).Msg("Model registry unavailable, serving unversioned artifact")
		} else if v := mm.GetCurrentVersion(settings.Family); v != nil {
			scorer.SetVersion(v.Version)
		}

		port := settings.MetricsPort
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		rejectRate := func() float64 {
			return m.GetRejectRate(prometheus.DefaultGatherer)
		}
		server := ml.NewModelServer(scorer, ml.ServerOptions{
			Port:       port,
			ModelDir:   settings.ModelDir,
			Timeout:    settings.ExternalTimeout,
			Metrics:    promhttp.Handler(),
			RejectRate: rejectRate,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info().Msg("Shutting down model server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default METRICS_PORT)")
}
