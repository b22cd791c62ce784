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

package ledger

import (
	"encoding/binary"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// computeViolationID derives the violation identifier from the vehicle,
// issuer, issuance second and offense code. Variable-length fields are
// length-prefixed so distinct tuples never share an encoding.
func computeViolationID(
	vehicleID string,
	issuer Principal,
	issuedAt int64,
	offenseCode uint16,
) ViolationID {
	// blake2b.New256 only fails for oversized keys
	h, _ := blake2b.New256(nil)
	writeField(h, []byte(vehicleID))
	writeField(h, []byte(issuer))
	var buf [10]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(issuedAt)) //nolint:gosec
	binary.BigEndian.PutUint16(buf[8:10], offenseCode)
	h.Write(buf[:])
	var ret ViolationID
	copy(ret[:], h.Sum(nil))
	return ret
}

func writeField(h hash.Hash, data []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data))) //nolint:gosec
	h.Write(lenBuf[:])
	h.Write(data)
}
