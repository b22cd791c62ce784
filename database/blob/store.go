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

package blob

import (
	"fmt"
	"log/slog"

	"github.com/TechTribalist/Traffic/database/blob/badger"
	"github.com/TechTribalist/Traffic/database/types"
	"github.com/prometheus/client_golang/prometheus"
)

type BlobStore interface {
	Close() error
	NewTransaction(bool) types.Txn
	Get(types.Txn, []byte) ([]byte, error)
	Set(types.Txn, []byte, []byte) error
	NewIterator(types.Txn, types.BlobIteratorOptions) types.BlobIterator

	// Our specific functions
	GetCommitTimestamp() (int64, error)
	SetCommitTimestamp(int64, types.Txn) error
}

// Tuning holds backend tuning. Zero cache sizes keep the backend defaults.
type Tuning struct {
	BlockCacheSize uint64
	IndexCacheSize uint64
	DisableGc      bool
}

// New returns the blob store backend selected by name
func New(
	backend string,
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
	tuning Tuning,
) (BlobStore, error) {
	switch backend {
	case "badger":
		opts := []badger.BlobStoreBadgerOptionFunc{
			badger.WithDataDir(dataDir),
			badger.WithLogger(logger),
			badger.WithPromRegistry(promRegistry),
			badger.WithGc(!tuning.DisableGc),
		}
		if tuning.BlockCacheSize > 0 {
			opts = append(opts, badger.WithBlockCacheSize(tuning.BlockCacheSize))
		}
		if tuning.IndexCacheSize > 0 {
			opts = append(opts, badger.WithIndexCacheSize(tuning.IndexCacheSize))
		}
		return badger.New(opts...)
	default:
		return nil, fmt.Errorf("unknown blob store backend: %s", backend)
	}
}
