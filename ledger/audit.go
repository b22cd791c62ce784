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
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

type AuditEventType string

const (
	AuditRoleGranted        AuditEventType = "role_granted"
	AuditRoleRevoked        AuditEventType = "role_revoked"
	AuditOfficerRegistered  AuditEventType = "officer_registered"
	AuditOfficerReactivated AuditEventType = "officer_reactivated"
	AuditOfficerDeactivated AuditEventType = "officer_deactivated"
	AuditOffenseUpdated     AuditEventType = "offense_updated"
	AuditViolationLogged    AuditEventType = "violation_logged"
	AuditFinePaid           AuditEventType = "fine_paid"
	AuditAppealSubmitted    AuditEventType = "appeal_submitted"
	AuditAppealResolved     AuditEventType = "appeal_resolved"
	AuditRefundQueued       AuditEventType = "refund_queued"
	AuditRefundClaimed      AuditEventType = "refund_claimed"
	AuditFundsWithdrawn     AuditEventType = "funds_withdrawn"
	AuditUpgradeAuthorized  AuditEventType = "upgrade_authorized"
	AuditPaused             AuditEventType = "paused"
	AuditUnpaused           AuditEventType = "unpaused"
)

// AuditHash is a BLAKE2b-256 link in the audit chain
type AuditHash [blake2b.Size256]byte

func (h AuditHash) String() string {
	return hex.EncodeToString(h[:])
}

func (h AuditHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *AuditHash) UnmarshalText(data []byte) error {
	if len(data) != hex.EncodedLen(len(h)) {
		return fmt.Errorf("audit hash must be %d hex characters", hex.EncodedLen(len(h)))
	}
	_, err := hex.Decode(h[:], data)
	return err
}

// AuditEntry is one append-only record in the hash-chained audit journal
type AuditEntry struct {
	Time     time.Time         `json:"time"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Type     AuditEventType    `json:"type"`
	Actor    Principal         `json:"actor"`
	Subject  string            `json:"subject"`
	Seq      uint64            `json:"seq"`
	PrevHash AuditHash         `json:"prevHash"`
	Hash     AuditHash         `json:"hash"`
}

// auditPayload fixes the field order used for hashing. Map keys are sorted
// by encoding/json, so the encoding is deterministic.
type auditPayload struct {
	Seq      uint64            `json:"seq"`
	Type     AuditEventType    `json:"type"`
	Time     string            `json:"time"`
	Actor    Principal         `json:"actor"`
	Subject  string            `json:"subject"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	PrevHash AuditHash         `json:"prevHash"`
}

// ComputeHash returns the chain hash for the entry given its PrevHash
func (e AuditEntry) ComputeHash() (AuditHash, error) {
	payload, err := json.Marshal(auditPayload{
		Seq:      e.Seq,
		Type:     e.Type,
		Time:     e.Time.UTC().Format(time.RFC3339Nano),
		Actor:    e.Actor,
		Subject:  e.Subject,
		Attrs:    e.Attrs,
		PrevHash: e.PrevHash,
	})
	if err != nil {
		return AuditHash{}, err
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return AuditHash{}, err
	}
	h.Write(e.PrevHash[:])
	h.Write(payload)
	var ret AuditHash
	copy(ret[:], h.Sum(nil))
	return ret, nil
}

// AuditChainError describes the first broken link found while verifying
// the audit journal
type AuditChainError struct {
	Reason string
	Seq    uint64
}

func (e AuditChainError) Error() string {
	return fmt.Sprintf("audit chain broken at seq %d: %s", e.Seq, e.Reason)
}

var errAuditChainEmpty = errors.New("audit journal is empty")

// verifyAuditChain checks sequence continuity and hash links, returning the
// head entry on success
func verifyAuditChain(entries []AuditEntry) (AuditEntry, error) {
	if len(entries) == 0 {
		return AuditEntry{}, errAuditChainEmpty
	}
	var prev AuditEntry
	for idx, entry := range entries {
		if idx > 0 {
			if entry.Seq != prev.Seq+1 {
				return prev, AuditChainError{
					Seq:    entry.Seq,
					Reason: fmt.Sprintf("expected seq %d", prev.Seq+1),
				}
			}
			if entry.PrevHash != prev.Hash {
				return prev, AuditChainError{
					Seq:    entry.Seq,
					Reason: "previous hash mismatch",
				}
			}
		} else if entry.Seq == 1 && entry.PrevHash != (AuditHash{}) {
			return prev, AuditChainError{
				Seq:    entry.Seq,
				Reason: "genesis entry has non-zero previous hash",
			}
		}
		hash, err := entry.ComputeHash()
		if err != nil {
			return prev, err
		}
		if hash != entry.Hash {
			return prev, AuditChainError{
				Seq:    entry.Seq,
				Reason: "entry hash mismatch",
			}
		}
		prev = entry
	}
	return prev, nil
}
