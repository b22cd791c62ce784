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
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// Read operations never fail on role or pause checks

func (ls *Ledger) HasRole(role Role, p Principal) bool {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.state.hasRole(role, p)
}

func (ls *Ledger) IsActiveOfficer(p Principal) bool {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.state.isActiveOfficer(p)
}

func (ls *Ledger) GetOfficer(p Principal) (Officer, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	o, ok := ls.state.officer(p)
	if !ok {
		return Officer{}, fmt.Errorf("%w: officer %s", ErrNotFound, p)
	}
	return o, nil
}

// Officers returns every officer record ordered by registration time
func (ls *Ledger) Officers() []Officer {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	ret := make([]Officer, 0, len(ls.state.officers))
	for p := range ls.state.officers {
		o, _ := ls.state.officer(p)
		ret = append(ret, o)
	}
	slices.SortFunc(ret, func(a, b Officer) int {
		if c := a.RegisteredAt.Compare(b.RegisteredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Principal, b.Principal)
	})
	return ret
}

func (ls *Ledger) GetOffense(code uint16) (Offense, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	o, ok := ls.state.offenses[code]
	if !ok {
		return Offense{}, fmt.Errorf("%w: offense code %d", ErrNotFound, code)
	}
	return o, nil
}

// OffenseCatalog returns all offenses, active or not, ordered by code
func (ls *Ledger) OffenseCatalog() []Offense {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	codes := slices.Sorted(maps.Keys(ls.state.offenses))
	ret := make([]Offense, 0, len(codes))
	for _, code := range codes {
		ret = append(ret, ls.state.offenses[code])
	}
	return ret
}

func (ls *Ledger) GetViolation(id ViolationID) (Violation, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	v, ok := ls.state.violations[id]
	if !ok {
		return Violation{}, fmt.Errorf("%w: violation %s", ErrNotFound, id)
	}
	return v, nil
}

// GetVehicleViolations returns a page of violation IDs for a vehicle in
// issuance order. Unknown vehicles and out of range offsets yield an empty
// page. A zero limit means no limit.
func (ls *Ledger) GetVehicleViolations(
	vehicleID string,
	offset uint,
	limit uint,
) []ViolationID {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	ids := ls.state.vehicles[vehicleID]
	if offset >= uint(len(ids)) {
		return []ViolationID{}
	}
	ids = ids[offset:]
	if limit > 0 && limit < uint(len(ids)) {
		ids = ids[:limit]
	}
	return slices.Clone(ids)
}

// Violations returns every violation ordered by issuance
func (ls *Ledger) Violations() []Violation {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	ret := slices.Collect(maps.Values(ls.state.violations))
	slices.SortFunc(ret, func(a, b Violation) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return ret
}

func (ls *Ledger) GetAppeal(id ViolationID) (Appeal, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	a, ok := ls.state.appeals[id]
	if !ok {
		return Appeal{}, fmt.Errorf("%w: appeal for violation %s", ErrNotFound, id)
	}
	return a, nil
}

func (ls *Ledger) PendingRefund(p Principal) uint64 {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.state.refunds[p]
}

func (ls *Ledger) Statistics() Statistics {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.state.stats
}

func (ls *Ledger) Paused() bool {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.state.paused
}

// AuthorizedUpgrade returns the latest upgrade authorization. ok is false
// when none has been recorded.
func (ls *Ledger) AuthorizedUpgrade() (Upgrade, bool) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.state.upgrade, ls.state.upgrade.Target != ""
}

// AuditEntries returns up to limit journal entries starting at sequence
// number from. A non-positive limit returns everything after from.
func (ls *Ledger) AuditEntries(from uint64, limit int) []AuditEntry {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	if from == 0 {
		from = 1
	}
	// Journal sequence numbers start at 1 and are contiguous
	start := from - 1
	if start >= uint64(len(ls.journal)) {
		return []AuditEntry{}
	}
	entries := ls.journal[start:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	ret := make([]AuditEntry, len(entries))
	for idx, entry := range entries {
		entry.Attrs = maps.Clone(entry.Attrs)
		ret[idx] = entry
	}
	return ret
}

// AuditHead returns the sequence number and hash of the latest entry
func (ls *Ledger) AuditHead() (uint64, AuditHash) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.state.auditSeq, ls.state.auditHead
}

// VerifyAuditLog re-derives every hash in the journal and checks the result
// against the recorded head
func (ls *Ledger) VerifyAuditLog() error {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return verifyJournal(ls.journal, ls.state.auditSeq, ls.state.auditHead)
}

func verifyJournal(journal []AuditEntry, seq uint64, head AuditHash) error {
	if len(journal) == 0 {
		if seq == 0 {
			return nil
		}
		return AuditChainError{Seq: seq, Reason: "journal is missing"}
	}
	if journal[0].Seq != 1 {
		return AuditChainError{
			Seq:    journal[0].Seq,
			Reason: "journal does not start at seq 1",
		}
	}
	last, err := verifyAuditChain(journal)
	if err != nil {
		return err
	}
	if last.Seq != seq || last.Hash != head {
		return AuditChainError{
			Seq:    last.Seq,
			Reason: fmt.Sprintf("journal head does not match recorded head %d", seq),
		}
	}
	return nil
}
