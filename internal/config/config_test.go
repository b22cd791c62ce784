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
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/TechTribalist/Traffic/database/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetGlobalConfig() {
	globalConfig = defaultConfig()
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "traffic.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(content), 0o600))
	return tmpFile
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, "0.0.0.0:8080", cfg.ApiListenAddress())
	assert.Equal(t, "0.0.0.0:12799", cfg.MetricsListenAddress())
	timeout, err := cfg.ShutdownTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout)
}

func TestLoad_CompareFullStruct(t *testing.T) {
	resetGlobalConfig()
	tmpFile := writeConfigFile(t, `
databasePath: "/var/lib/traffic"
bootstrapAdmin: "city-admin"
bindAddr: "127.0.0.1"
apiPort: 9000
apiTokenSecret: "0123456789abcdef0123456789abcdef"
apiRateLimit: 5
apiRateBurst: 10
metricsPort: 0
shutdownTimeout: "10s"
blobBlockCacheSize: 67108864
blobGc: false
dashboard: false
tracing: true
debug: true
`)

	expected := &Config{
		DatabasePath:       "/var/lib/traffic",
		BlobBackend:        DefaultBlobBackend,
		MetadataBackend:    DefaultMetadataBackend,
		BlobBlockCacheSize: 64 << 20,
		BlobGc:             false,
		BootstrapAdmin:     "city-admin",
		BindAddr:           "127.0.0.1",
		ApiTokenSecret:     "0123456789abcdef0123456789abcdef",
		ShutdownTimeout:    "10s",
		ApiRateLimit:       5,
		ApiRateBurst:       10,
		ApiPort:            9000,
		MetricsPort:        0,
		Dashboard:          false,
		Tracing:            true,
		Debug:              true,
	}

	actual, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
	assert.Equal(t, "127.0.0.1:9000", actual.ApiListenAddress())
	assert.Empty(t, actual.MetricsListenAddress())
	assert.Equal(
		t,
		blob.Tuning{BlockCacheSize: 64 << 20, DisableGc: true},
		actual.BlobTuning(),
	)
}

func TestLoad_ConfigSectionOverlaysDefaults(t *testing.T) {
	resetGlobalConfig()
	tmpFile := writeConfigFile(t, `
config:
  databasePath: "/data"
  apiPort: 8181
`)

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, "/data", cfg.DatabasePath)
	assert.Equal(t, uint(8181), cfg.ApiPort)
	// Untouched values keep their defaults
	assert.Equal(t, "admin", cfg.BootstrapAdmin)
	assert.Equal(t, uint(12799), cfg.MetricsPort)
	assert.True(t, cfg.Dashboard)
	assert.True(t, cfg.BlobGc)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	resetGlobalConfig()
	tmpFile := writeConfigFile(t, `
databasePath: "/from-file"
apiPort: 9000
`)
	t.Setenv("TRAFFIC_DATABASE_PATH", "/from-env")
	t.Setenv("TRAFFIC_API_PORT", "9100")
	t.Setenv("TRAFFIC_TRACING_STDOUT", "true")
	t.Setenv("TRAFFIC_BLOB_INDEX_CACHE_SIZE", "1048576")
	t.Setenv("TRAFFIC_BLOB_GC", "false")

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, "/from-env", cfg.DatabasePath)
	assert.Equal(t, uint(9100), cfg.ApiPort)
	assert.True(t, cfg.TracingStdout)
	assert.Equal(t, uint64(1<<20), cfg.BlobIndexCacheSize)
	assert.False(t, cfg.BlobGc)
}

func TestLoad_Invalid(t *testing.T) {
	testDefs := []struct {
		name    string
		content string
	}{
		{name: "unknown blob backend", content: `blobBackend: "gcs"`},
		{name: "unknown metadata backend", content: `metadataBackend: "mysql"`},
		{name: "empty admin", content: `bootstrapAdmin: ""`},
		{name: "short secret", content: `apiTokenSecret: "short"`},
		{name: "bad timeout", content: `shutdownTimeout: "soon"`},
		{name: "negative timeout", content: `shutdownTimeout: "-1s"`},
		{name: "port clash", content: "apiPort: 9000\nmetricsPort: 9000"},
		{name: "port range", content: `apiPort: 70000`},
		{name: "oversized cache", content: `blobBlockCacheSize: 2199023255552`},
		{name: "malformed yaml", content: `apiPort: [`},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			resetGlobalConfig()
			_, err := LoadConfig(writeConfigFile(t, testDef.content))
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	resetGlobalConfig()
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestTokenSecret(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file mode bits do not apply on windows")
	}
	cfg := defaultConfig()
	secret, err := cfg.TokenSecret()
	require.NoError(t, err)
	assert.Nil(t, secret)

	cfg.ApiTokenSecret = strings.Repeat("a", 32)
	secret, err = cfg.TokenSecret()
	require.NoError(t, err)
	assert.Equal(t, []byte(cfg.ApiTokenSecret), secret)

	path := filepath.Join(t.TempDir(), "token.secret")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("b", 40)+"\n"), 0o600))
	require.NoError(t, os.Chmod(path, 0o600))
	cfg.ApiTokenSecret = ""
	cfg.ApiTokenSecretFile = path
	secret, err = cfg.TokenSecret()
	require.NoError(t, err)
	assert.Equal(t, []byte(strings.Repeat("b", 40)), secret)

	cfg.ApiTokenSecret = strings.Repeat("a", 32)
	require.Error(t, cfg.validate())
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := defaultConfig()
	ctx := WithContext(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
