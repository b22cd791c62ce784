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

// Package keystore loads signing secrets from files that only the service
// account may read
package keystore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// MinSecretBytes is the shortest accepted HS256 secret
const MinSecretBytes = 32

// Secrets are small; anything larger is the wrong file
const maxSecretFileSize = 64 << 10

var (
	ErrInsecureFileMode = errors.New("insecure file permissions")
	ErrSecretTooShort   = errors.New("secret too short")
)

// LoadSecret reads a secret from path. Surrounding whitespace is removed.
// Permissions are checked on the open handle so the file cannot be swapped
// between the check and the read.
func LoadSecret(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open secret file %q: %w", path, err)
	}
	defer f.Close()

	if err := checkOpenFilePermissions(f); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(f, maxSecretFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read secret file %q: %w", path, err)
	}
	if len(data) > maxSecretFileSize {
		return nil, fmt.Errorf(
			"secret file %q exceeds %d bytes",
			path,
			maxSecretFileSize,
		)
	}
	secret := bytes.TrimSpace(data)
	if len(secret) < MinSecretBytes {
		return nil, fmt.Errorf(
			"secret file %q holds %d bytes, need at least %d: %w",
			path,
			len(secret),
			MinSecretBytes,
			ErrSecretTooShort,
		)
	}
	return secret, nil
}
