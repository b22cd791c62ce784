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

package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/TechTribalist/Traffic/database/blob"
	"github.com/TechTribalist/Traffic/keystore"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "traffic.config"

const maxBlobCacheSize = 1 << 40

const (
	DefaultShutdownTimeout = "30s"
	DefaultBlobBackend     = "badger"
	DefaultMetadataBackend = "sqlite"
	envPrefix              = "traffic"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type tempConfig struct {
	Config yaml.Node `yaml:"config,omitempty"`
}

type Config struct {
	DatabasePath    string `yaml:"databasePath"    split_words:"true"`
	BlobBackend     string `yaml:"blobBackend"     split_words:"true"`
	MetadataBackend string `yaml:"metadataBackend" split_words:"true"`
	BootstrapAdmin  string `yaml:"bootstrapAdmin"  split_words:"true"`
	BindAddr        string `yaml:"bindAddr"        split_words:"true"`
	// Blob store tuning in bytes (0 = backend default)
	BlobBlockCacheSize uint64 `yaml:"blobBlockCacheSize" split_words:"true"`
	BlobIndexCacheSize uint64 `yaml:"blobIndexCacheSize" split_words:"true"`
	BlobGc             bool   `yaml:"blobGc"             split_words:"true"`
	// HS256 secret for API bearer tokens, inline or from an owner-only
	// file. Writes are disabled when both are empty
	ApiTokenSecret     string  `yaml:"apiTokenSecret"     split_words:"true"`
	ApiTokenSecretFile string  `yaml:"apiTokenSecretFile" split_words:"true"`
	ShutdownTimeout    string  `yaml:"shutdownTimeout"    split_words:"true"`
	ApiRateLimit       float64 `yaml:"apiRateLimit"       split_words:"true"`
	ApiRateBurst       int     `yaml:"apiRateBurst"       split_words:"true"`
	// Listener ports (0 = disabled)
	ApiPort       uint `yaml:"apiPort"       split_words:"true"`
	MetricsPort   uint `yaml:"metricsPort"   split_words:"true"`
	Dashboard     bool `yaml:"dashboard"`
	Tracing       bool `yaml:"tracing"`
	TracingStdout bool `yaml:"tracingStdout" split_words:"true"`
	Debug         bool `yaml:"debug"`
}

// ApiListenAddress returns the API listen address, or an empty string when
// the API is disabled
func (c *Config) ApiListenAddress() string {
	if c.ApiPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.BindAddr, strconv.FormatUint(uint64(c.ApiPort), 10))
}

// MetricsListenAddress returns the metrics listen address, or an empty
// string when metrics are disabled
func (c *Config) MetricsListenAddress() string {
	if c.MetricsPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.BindAddr, strconv.FormatUint(uint64(c.MetricsPort), 10))
}

// TokenSecret returns the configured API token secret, or nil when none is
// configured
func (c *Config) TokenSecret() ([]byte, error) {
	if c.ApiTokenSecretFile != "" {
		return keystore.LoadSecret(c.ApiTokenSecretFile)
	}
	if c.ApiTokenSecret == "" {
		return nil, nil
	}
	return []byte(c.ApiTokenSecret), nil
}

// BlobTuning returns the blob store settings
func (c *Config) BlobTuning() blob.Tuning {
	return blob.Tuning{
		BlockCacheSize: c.BlobBlockCacheSize,
		IndexCacheSize: c.BlobIndexCacheSize,
		DisableGc:      !c.BlobGc,
	}
}

// ShutdownTimeoutDuration parses ShutdownTimeout
func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	if c.ShutdownTimeout == "" {
		return time.ParseDuration(DefaultShutdownTimeout)
	}
	timeout, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdownTimeout: %w", err)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("shutdownTimeout must be positive: %s", c.ShutdownTimeout)
	}
	return timeout, nil
}

func (c *Config) validate() error {
	if c.BlobBackend != DefaultBlobBackend {
		return fmt.Errorf("unsupported blobBackend: %q", c.BlobBackend)
	}
	if c.MetadataBackend != DefaultMetadataBackend {
		return fmt.Errorf("unsupported metadataBackend: %q", c.MetadataBackend)
	}
	if c.BlobBlockCacheSize > maxBlobCacheSize || c.BlobIndexCacheSize > maxBlobCacheSize {
		return fmt.Errorf("blob cache sizes must be at most %d bytes", uint64(maxBlobCacheSize))
	}
	if c.BootstrapAdmin == "" {
		return errors.New("bootstrapAdmin must be set")
	}
	if c.ApiTokenSecret != "" && c.ApiTokenSecretFile != "" {
		return errors.New("apiTokenSecret and apiTokenSecretFile are exclusive")
	}
	if c.ApiTokenSecret != "" && len(c.ApiTokenSecret) < keystore.MinSecretBytes {
		return fmt.Errorf(
			"apiTokenSecret must be at least %d bytes",
			keystore.MinSecretBytes,
		)
	}
	if c.ApiPort > 65535 || c.MetricsPort > 65535 {
		return errors.New("ports must be at most 65535")
	}
	if c.ApiPort != 0 && c.ApiPort == c.MetricsPort {
		return errors.New("apiPort and metricsPort must differ")
	}
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

var globalConfig = defaultConfig()

func defaultConfig() *Config {
	return &Config{
		DatabasePath:    ".traffic",
		BlobBackend:     DefaultBlobBackend,
		MetadataBackend: DefaultMetadataBackend,
		BlobGc:          true,
		BootstrapAdmin:  "admin",
		BindAddr:        "0.0.0.0",
		ShutdownTimeout: DefaultShutdownTimeout,
		ApiPort:         8080,
		ApiRateLimit:    20,
		ApiRateBurst:    40,
		MetricsPort:     12799,
		Dashboard:       true,
	}
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.traffic/traffic.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".traffic", "traffic.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/traffic/traffic.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/traffic/traffic.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		var tempCfg tempConfig
		err = yaml.Unmarshal(buf, &tempCfg)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}

		// If config section exists, use it for main config. Values are
		// overlaid onto the existing defaults.
		if tempCfg.Config.Kind != 0 {
			if err := tempCfg.Config.Decode(globalConfig); err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
		} else {
			err = yaml.Unmarshal(buf, globalConfig)
			if err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}
	// Process environment variables
	err := envconfig.Process(envPrefix, globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := globalConfig.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}
