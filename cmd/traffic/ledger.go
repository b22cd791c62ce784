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

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/TechTribalist/Traffic/database"
	"github.com/TechTribalist/Traffic/internal/config"
	"github.com/TechTribalist/Traffic/ledger"
)

var errNoLedger = errors.New("no ledger state found")

// openLedger loads existing ledger state read-only in intent. It refuses to
// bootstrap a new ledger so inspection commands never create state.
func openLedger(
	cfg *config.Config,
	logger *slog.Logger,
) (*database.Database, *ledger.Ledger, error) {
	if cfg.DatabasePath == "" {
		return nil, nil, errors.New("a database path is required")
	}
	db, err := database.New(&database.Config{
		DataDir:         cfg.DatabasePath,
		Logger:          logger,
		BlobBackend:     cfg.BlobBackend,
		MetadataBackend: cfg.MetadataBackend,
		BlobTuning:      cfg.BlobTuning(),
	})
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	snapshot, err := db.LoadSnapshot()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("loading ledger: %w", err)
	}
	if snapshot.Meta == nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("%w in %s", errNoLedger, cfg.DatabasePath)
	}
	ls, err := ledger.New(ledger.LedgerConfig{
		Logger:         logger,
		Database:       db,
		Payout:         ledger.NewLoggingPayout(logger),
		BootstrapAdmin: ledger.Principal(cfg.BootstrapAdmin),
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("loading ledger: %w", err)
	}
	return db, ls, nil
}
