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

package metadata

import (
	"fmt"
	"log/slog"

	"github.com/TechTribalist/Traffic/database/metadata/sqlite"
	"github.com/TechTribalist/Traffic/database/models"
	"github.com/TechTribalist/Traffic/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

type MetadataStore interface {
	// Database
	Close() error
	DB() *gorm.DB
	GetCommitTimestamp() (int64, error)
	SetCommitTimestamp(int64, types.Txn) error
	Transaction() types.Txn

	// Ledger state
	ApplyChangeSet(*models.ChangeSet, types.Txn) error
	LoadSnapshot() (*models.Snapshot, error)
}

// New returns the metadata store backend selected by name
func New(
	backend string,
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (MetadataStore, error) {
	switch backend {
	case "sqlite":
		return sqlite.New(
			sqlite.WithDataDir(dataDir),
			sqlite.WithLogger(logger),
			sqlite.WithPromRegistry(promRegistry),
		)
	default:
		return nil, fmt.Errorf("unknown metadata store backend: %s", backend)
	}
}
