// Command balancer runs the FlipHash TCP load balancer: three accept
// loops (client, registration, metrics), a periodic health checker,
// and an optional admin introspection API, all sharing one backend
// pool.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0xReLogic/fliphash-lb/internal/adminapi"
	"github.com/0xReLogic/fliphash-lb/internal/config"
	"github.com/0xReLogic/fliphash-lb/internal/dispatcher"
	"github.com/0xReLogic/fliphash-lb/internal/health"
	"github.com/0xReLogic/fliphash-lb/internal/listener"
	"github.com/0xReLogic/fliphash-lb/internal/logging"
	"github.com/0xReLogic/fliphash-lb/internal/metrics"
	"github.com/0xReLogic/fliphash-lb/internal/pool"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional; defaults apply when omitted)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logging.L().Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(cfg.Logging)
	logger := logging.L()

	p := pool.New()
	collector := metrics.NewCollector(p)

	clientLn, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Ports.Client))
	if err != nil {
		logger.Fatal().Err(err).Int("port", cfg.Ports.Client).Msg("client listener failed to bind")
	}
	registrationLn, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Ports.Registration))
	if err != nil {
		logger.Fatal().Err(err).Int("port", cfg.Ports.Registration).Msg("registration listener failed to bind")
	}
	metricsLn, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Ports.Metrics))
	if err != nil {
		logger.Fatal().Err(err).Int("port", cfg.Ports.Metrics).Msg("metrics listener failed to bind")
	}

	d := dispatcher.New(
		p,
		time.Duration(cfg.Dispatcher.DialTimeoutSeconds)*time.Second,
		cfg.Dispatcher.PipeBufferBytes,
		collector,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go listener.Client(ctx, clientLn, d.Handle)
	go listener.Registration(ctx, registrationLn, p)
	go listener.Metrics(ctx, metricsLn, p)

	checker := health.New(
		p,
		time.Duration(cfg.HealthChecks.IntervalSeconds)*time.Second,
		time.Duration(cfg.HealthChecks.TimeoutSeconds)*time.Second,
		cfg.HealthChecks.SendProbeFrame,
		collector,
	)
	go checker.Run(ctx)

	var adminServer *http.Server
	if cfg.AdminAPI.Enabled {
		filter, err := adminapi.NewIPFilter(cfg.AdminAPI.IPFilter.AllowList, cfg.AdminAPI.IPFilter.DenyList)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid admin api ip filter configuration")
		}
		handler := adminapi.NewMux(p, collector, cfg.AdminAPI.AuthToken, filter)
		handler = logging.RequestContextMiddleware(cfg.Logging)(handler)

		adminServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.AdminAPI.Port),
			Handler: handler,
		}
		go func() {
			logger.Info().Int("port", cfg.AdminAPI.Port).Msg("admin api server starting")
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("admin api server error")
			}
		}()
	}

	logger.Info().
		Int("client_port", cfg.Ports.Client).
		Int("registration_port", cfg.Ports.Registration).
		Int("metrics_port", cfg.Ports.Metrics).
		Msg("fliphash-lb started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	cancel()
	if adminServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("error shutting down admin api server")
		}
	}

	logger.Info().Msg("fliphash-lb shutdown complete")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}
