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

package database

import (
	"errors"
	"io"
	"log/slog"

	"github.com/TechTribalist/Traffic/database/blob"
	"github.com/TechTribalist/Traffic/database/metadata"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultBlobBackend     = "badger"
	DefaultMetadataBackend = "sqlite"
)

// Config holds the database settings. An empty DataDir keeps both stores in
// memory.
type Config struct {
	Logger          *slog.Logger
	PromRegistry    prometheus.Registerer
	DataDir         string
	BlobBackend     string
	MetadataBackend string
	// BlobTuning adjusts the blob store caches and value log GC
	BlobTuning blob.Tuning
}

type Database struct {
	logger   *slog.Logger
	blob     blob.BlobStore
	metadata metadata.MetadataStore
	dataDir  string
}

// Blob returns the underling blob store instance
func (d *Database) Blob() blob.BlobStore {
	return d.blob
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// Transaction starts a new database transaction and returns a handle to it
func (d *Database) Transaction(readWrite bool) *Txn {
	return NewTxn(d, readWrite)
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	// Close metadata
	if d.metadata != nil {
		err = errors.Join(err, d.metadata.Close())
	}
	// Close blob
	if d.blob != nil {
		err = errors.Join(err, d.blob.Close())
	}
	return err
}

func (d *Database) init() error {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Check commit timestamp
	if err := d.checkCommitTimestamp(); err != nil {
		return err
	}
	return nil
}

// New creates a new database instance with optional persistence using the
// configured data directory
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	blobBackend := config.BlobBackend
	if blobBackend == "" {
		blobBackend = DefaultBlobBackend
	}
	metadataBackend := config.MetadataBackend
	if metadataBackend == "" {
		metadataBackend = DefaultMetadataBackend
	}
	metadataDb, err := metadata.New(
		metadataBackend,
		config.DataDir,
		config.Logger,
		config.PromRegistry,
	)
	if err != nil {
		return nil, err
	}
	blobDb, err := blob.New(
		blobBackend,
		config.DataDir,
		config.Logger,
		config.PromRegistry,
		config.BlobTuning,
	)
	if err != nil {
		_ = metadataDb.Close()
		return nil, err
	}
	db := &Database{
		logger:   config.Logger,
		blob:     blobDb,
		metadata: metadataDb,
		dataDir:  config.DataDir,
	}
	if err := db.init(); err != nil {
		// Database is available for recovery, so return it with error
		return db, err
	}
	return db, nil
}
