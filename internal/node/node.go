// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	traffic "github.com/TechTribalist/Traffic"
	"github.com/TechTribalist/Traffic/internal/config"
	"github.com/TechTribalist/Traffic/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NodeOptions returns the node options derived from cfg
func NodeOptions(
	cfg *config.Config,
	logger *slog.Logger,
	registry prometheus.Registerer,
) ([]traffic.ConfigOptionFunc, error) {
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return nil, err
	}
	opts := []traffic.ConfigOptionFunc{
		traffic.WithLogger(logger),
		traffic.WithDatabasePath(cfg.DatabasePath),
		traffic.WithBlobBackend(cfg.BlobBackend),
		traffic.WithMetadataBackend(cfg.MetadataBackend),
		traffic.WithBlobCacheSizes(cfg.BlobBlockCacheSize, cfg.BlobIndexCacheSize),
		traffic.WithBlobGc(cfg.BlobGc),
		traffic.WithBootstrapAdmin(ledger.Principal(cfg.BootstrapAdmin)),
		traffic.WithApiListenAddress(cfg.ApiListenAddress()),
		traffic.WithApiRateLimit(cfg.ApiRateLimit, cfg.ApiRateBurst),
		traffic.WithDashboard(cfg.Dashboard),
		traffic.WithShutdownTimeout(shutdownTimeout),
		traffic.WithTracing(cfg.Tracing),
		traffic.WithTracingStdout(cfg.TracingStdout),
		traffic.WithPrometheusRegistry(registry),
	}
	secret, err := cfg.TokenSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to load API token secret: %w", err)
	}
	if len(secret) > 0 && cfg.ApiListenAddress() != "" {
		opts = append(opts, traffic.WithApiTokenSecret(secret))
	}
	return opts, nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}
	// Enable metrics with default prometheus registry
	opts, err := NodeOptions(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	n, err := traffic.New(traffic.NewConfig(opts...))
	if err != nil {
		return err
	}
	// Metrics listener
	var metricsServer *http.Server
	if addr := cfg.MetricsListenAddress(); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info(
			"serving prometheus metrics on "+addr,
			"component", "node",
		)
		metricsServer = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				logger.Error(
					fmt.Sprintf("failed to start metrics listener: %s", err),
					"component", "node",
				)
				os.Exit(1)
			}
		}()
	}
	shutdownMetrics := func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run node in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- n.Run()
	}()

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		shutdownMetrics()
		if err := n.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil

	case err := <-errChan:
		shutdownMetrics()
		if stopErr := n.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error",
				stopErr,
			)
		}
		if err != nil {
			logger.Error("node error", "error", err)
			return err
		}
		logger.Info("node stopped")
		return nil
	}
}
