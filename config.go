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

package traffic

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/TechTribalist/Traffic/database/blob"
	"github.com/TechTribalist/Traffic/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultShutdownTimeout = 30 * time.Second
	DefaultTokenTTL        = time.Hour
)

type Config struct {
	promRegistry    prometheus.Registerer
	logger          *slog.Logger
	payout          ledger.Payout
	clock           func() time.Time
	dataDir         string
	blobBackend     string
	metadataBackend string
	blobTuning      blob.Tuning
	bootstrapAdmin  ledger.Principal
	// API listen address (empty = disabled)
	apiListenAddress string
	apiTokenSecret   []byte
	apiRateLimit     float64
	apiRateBurst     int
	shutdownTimeout  time.Duration
	tracing          bool
	tracingStdout    bool
	dashboard        bool
}

func (n *Node) configValidate() error {
	if n.config.bootstrapAdmin.IsZero() {
		return errors.New("bootstrap admin principal must be set")
	}
	if len(n.config.apiTokenSecret) > 0 && n.config.apiListenAddress == "" {
		return errors.New("API token secret set without an API listen address")
	}
	if n.config.apiRateBurst < 0 {
		return errors.New("API rate burst must not be negative")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new node config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
		dashboard: true,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobBackend specifies the blob store backend holding the audit journal
func WithBlobBackend(backend string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobBackend = backend
	}
}

// WithMetadataBackend specifies the metadata store backend holding ledger records
func WithMetadataBackend(backend string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataBackend = backend
	}
}

// WithBlobCacheSizes specifies the blob store block and index cache sizes in bytes. Zero keeps the backend default
func WithBlobCacheSizes(blockCacheSize, indexCacheSize uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.blobTuning.BlockCacheSize = blockCacheSize
		c.blobTuning.IndexCacheSize = indexCacheSize
	}
}

// WithBlobGc enables or disables periodic value log GC in the blob store. It is enabled by default
func WithBlobGc(enabled bool) ConfigOptionFunc {
	return func(c *Config) {
		c.blobTuning.DisableGc = !enabled
	}
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithBootstrapAdmin specifies the principal that receives every role when
// the ledger is first created. Ignored when existing state is loaded.
func WithBootstrapAdmin(principal ledger.Principal) ConfigOptionFunc {
	return func(c *Config) {
		c.bootstrapAdmin = principal
	}
}

// WithPayout specifies the custody integration used for outbound transfers. This defaults to logging transfers only
func WithPayout(payout ledger.Payout) ConfigOptionFunc {
	return func(c *Config) {
		c.payout = payout
	}
}

// WithClock overrides the ledger time source
func WithClock(clock func() time.Time) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clock
	}
}

// WithApiListenAddress specifies the listen address for the REST API. The API is disabled when empty
func WithApiListenAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = address
	}
}

// WithApiTokenSecret specifies the HS256 secret used to verify bearer tokens. Write endpoints reject all requests without it
func WithApiTokenSecret(secret []byte) ConfigOptionFunc {
	return func(c *Config) {
		c.apiTokenSecret = secret
	}
}

// WithApiRateLimit specifies the per-client request rate and burst. A negative rate disables limiting
func WithApiRateLimit(perSecond float64, burst int) ConfigOptionFunc {
	return func(c *Config) {
		c.apiRateLimit = perSecond
		c.apiRateBurst = burst
	}
}

// WithDashboard specifies whether to maintain the reporting projection. This is enabled by default
func WithDashboard(enabled bool) ConfigOptionFunc {
	return func(c *Config) {
		c.dashboard = enabled
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies how long graceful shutdown may take. This defaults to 30s
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
