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
package blob_test

import (
	"testing"

	"github.com/TechTribalist/Traffic/database/blob"
	"github.com/TechTribalist/Traffic/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithTuning(t *testing.T) {
	testDefs := []struct {
		name    string
		dataDir string
		tuning  blob.Tuning
	}{
		{name: "in memory defaults"},
		{
			name:    "persistent with small caches",
			dataDir: t.TempDir(),
			tuning:  blob.Tuning{BlockCacheSize: 1 << 20, IndexCacheSize: 1 << 20},
		},
		{
			name:    "persistent without gc",
			dataDir: t.TempDir(),
			tuning:  blob.Tuning{DisableGc: true},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			store, err := blob.New("badger", testDef.dataDir, nil, nil, testDef.tuning)
			require.NoError(t, err)
			defer store.Close()

			key := types.AuditBlobKey(1)
			txn := store.NewTransaction(true)
			require.NoError(t, store.Set(txn, key, []byte("entry")))
			require.NoError(t, txn.Commit())

			txn = store.NewTransaction(false)
			defer txn.Rollback() //nolint:errcheck
			value, err := store.Get(txn, key)
			require.NoError(t, err)
			assert.Equal(t, []byte("entry"), value)
		})
	}
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := blob.New("gcs", "", nil, nil, blob.Tuning{})
	require.ErrorContains(t, err, "unknown blob store backend")
}
