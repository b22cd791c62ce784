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

// Package traffic wires the enforcement ledger to its storage, event bus,
// reporting projection and REST API
package traffic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/TechTribalist/Traffic/api"
	"github.com/TechTribalist/Traffic/database"
	"github.com/TechTribalist/Traffic/event"
	"github.com/TechTribalist/Traffic/ledger"
	"github.com/TechTribalist/Traffic/report"
)

type Node struct {
	eventBus      *event.EventBus
	db            *database.Database
	ledger        *ledger.Ledger
	dashboard     *report.Dashboard
	api           *api.Server
	apiCancel     context.CancelFunc
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	startOnce     sync.Once
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	eventBus := event.NewEventBus(cfg.promRegistry, cfg.logger)
	n := &Node{
		config:   cfg,
		eventBus: eventBus,
		done:     make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return n, nil
}

// Run starts the node and blocks until Stop is called
func (n *Node) Run() error {
	if err := n.Start(); err != nil {
		return err
	}
	// Wait for shutdown signal
	<-n.done
	return nil
}

// Start opens storage, loads or bootstraps the ledger and starts the
// optional dashboard and API. It returns once everything is serving.
func (n *Node) Start() error {
	err := errors.New("node already started")
	n.startOnce.Do(func() {
		err = n.start()
	})
	return err
}

func (n *Node) start() error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:         n.config.dataDir,
		Logger:          n.config.logger,
		PromRegistry:    n.config.promRegistry,
		BlobBackend:     n.config.blobBackend,
		MetadataBackend: n.config.metadataBackend,
		BlobTuning:      n.config.blobTuning,
	})
	if err != nil {
		var tsErr database.CommitTimestampError
		if errors.As(err, &tsErr) && db != nil {
			n.config.logger.Error(
				"metadata and blob stores disagree on last commit",
				"error", err,
			)
			_ = db.Close()
		}
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	// Load ledger
	payout := n.config.payout
	if payout == nil {
		payout = ledger.NewLoggingPayout(n.config.logger)
	}
	ls, err := ledger.New(ledger.LedgerConfig{
		Logger:         n.config.logger,
		Database:       n.db,
		EventBus:       n.eventBus,
		PromRegistry:   n.config.promRegistry,
		Payout:         payout,
		Clock:          n.config.clock,
		BootstrapAdmin: n.config.bootstrapAdmin,
	})
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	n.ledger = ls
	// Reporting projection
	if n.config.dashboard {
		n.dashboard = report.NewDashboard(report.DashboardConfig{
			Logger:       n.config.logger,
			EventBus:     n.eventBus,
			Source:       n.ledger,
			PromRegistry: n.config.promRegistry,
		})
		if err := n.dashboard.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
	}
	// Configure REST API
	if n.config.apiListenAddress != "" {
		if err := n.startApi(); err != nil {
			return err
		}
	}
	n.config.logger.Info(
		"node started",
		"component", "node",
		"audit_seq", n.auditSeq(),
		"paused", n.ledger.Paused(),
	)
	return nil
}

func (n *Node) startApi() error {
	var tokens *api.TokenManager
	if len(n.config.apiTokenSecret) > 0 {
		var err error
		tokens, err = api.NewTokenManager(n.config.apiTokenSecret)
		if err != nil {
			return fmt.Errorf("invalid API configuration: %w", err)
		}
	} else {
		n.config.logger.Warn(
			"no API token secret configured, write endpoints are disabled",
			"component", "node",
		)
	}
	var dashboard api.Dashboard
	if n.dashboard != nil {
		dashboard = n.dashboard
	}
	n.api = api.New(
		api.ServerConfig{
			PromRegistry:  n.config.promRegistry,
			Tokens:        tokens,
			ListenAddress: n.config.apiListenAddress,
			RateLimit:     n.config.apiRateLimit,
			RateBurst:     n.config.apiRateBurst,
		},
		n.ledger,
		dashboard,
		n.config.logger,
	)
	ctx, cancel := context.WithCancel(context.Background())
	if err := n.api.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start API: %w", err)
	}
	n.apiCancel = cancel
	return nil
}

func (n *Node) auditSeq() uint64 {
	seq, _ := n.ledger.AuditHead()
	return seq
}

// Ledger returns the running ledger, or nil before Start
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

// Dashboard returns the reporting projection, or nil when disabled
func (n *Node) Dashboard() *report.Dashboard {
	return n.dashboard
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	shutdownTimeout := DefaultShutdownTimeout
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown", "component", "node")

	// Phase 1: Stop accepting new work
	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("API shutdown: %w", stopErr))
		}
		n.apiCancel()
	}
	if n.dashboard != nil {
		n.dashboard.Stop()
	}

	// Phase 2: Close storage. Committed operations are already durable.
	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 3: Cleanup resources
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	n.config.logger.Debug("graceful shutdown complete", "component", "node")
	close(n.done)
	return err
}

