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

package types

import (
	"encoding/binary"
)

const (
	AuditBlobKeyPrefix = "audit/"
	auditSeqLen        = 8
)

// AuditBlobKey returns the journal key for an audit sequence number. The
// big-endian suffix keeps keys in sequence order during iteration.
func AuditBlobKey(seq uint64) []byte {
	key := make([]byte, len(AuditBlobKeyPrefix)+auditSeqLen)
	copy(key, AuditBlobKeyPrefix)
	binary.BigEndian.PutUint64(key[len(AuditBlobKeyPrefix):], seq)
	return key
}

// AuditBlobKeySeq extracts the sequence number from a journal key
func AuditBlobKeySeq(key []byte) (uint64, bool) {
	if len(key) != len(AuditBlobKeyPrefix)+auditSeqLen ||
		string(key[:len(AuditBlobKeyPrefix)]) != AuditBlobKeyPrefix {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[len(AuditBlobKeyPrefix):]), true
}
