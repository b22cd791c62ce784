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
	"maps"
	"slices"
	"time"
)

// state is the whole ledger. Entities reference each other by identifier.
type state struct {
	roles      map[Role]map[Principal]struct{}
	officers   map[Principal]Officer
	offenses   map[uint16]Offense
	violations map[ViolationID]Violation
	vehicles   map[string][]ViolationID
	appeals    map[ViolationID]Appeal
	refunds    map[Principal]uint64
	upgrade    Upgrade
	stats      Statistics
	// Issuance counter used to order violations
	violationSeq uint64
	auditSeq     uint64
	auditHead    AuditHash
	paused       bool
}

func newState() *state {
	s := &state{
		roles:      make(map[Role]map[Principal]struct{}),
		officers:   make(map[Principal]Officer),
		offenses:   make(map[uint16]Offense),
		violations: make(map[ViolationID]Violation),
		vehicles:   make(map[string][]ViolationID),
		appeals:    make(map[ViolationID]Appeal),
		refunds:    make(map[Principal]uint64),
	}
	for _, role := range AllRoles {
		s.roles[role] = make(map[Principal]struct{})
	}
	return s
}

func (s *state) hasRole(role Role, p Principal) bool {
	members, ok := s.roles[role]
	if !ok {
		return false
	}
	_, ok = members[p]
	return ok
}

// officer returns the officer record with Active derived from role membership
func (s *state) officer(p Principal) (Officer, bool) {
	o, ok := s.officers[p]
	if !ok {
		return Officer{}, false
	}
	o.Active = s.hasRole(RoleOfficer, p)
	return o, true
}

func (s *state) isActiveOfficer(p Principal) bool {
	o, ok := s.officer(p)
	return ok && o.Active
}

type roleKey struct {
	principal Principal
	role      Role
}

type transfer struct {
	to     Principal
	amount uint64
}

// txn stages the writes of one operation. Every write records an undo step
// so a failed operation leaves the state untouched.
type txn struct {
	ls       *Ledger
	now      time.Time
	caller   Principal
	undo     []func()
	entries  []AuditEntry
	payout   *transfer
	onCommit []func()
	dirty    dirtySet
}

type dirtySet struct {
	roles      map[roleKey]bool
	officers   map[Principal]struct{}
	offenses   map[uint16]struct{}
	violations map[ViolationID]struct{}
	appeals    map[ViolationID]struct{}
	refunds    map[Principal]struct{}
	meta       bool
}

func newTxn(ls *Ledger, caller Principal) *txn {
	return &txn{
		ls:     ls,
		caller: caller,
		now:    ls.config.Clock().UTC().Round(0),
		dirty: dirtySet{
			roles:      make(map[roleKey]bool),
			officers:   make(map[Principal]struct{}),
			offenses:   make(map[uint16]struct{}),
			violations: make(map[ViolationID]struct{}),
			appeals:    make(map[ViolationID]struct{}),
			refunds:    make(map[Principal]struct{}),
		},
	}
}

func (t *txn) state() *state {
	return t.ls.state
}

func (t *txn) empty() bool {
	return len(t.entries) == 0 &&
		len(t.dirty.roles) == 0 &&
		len(t.dirty.officers) == 0 &&
		len(t.dirty.offenses) == 0 &&
		len(t.dirty.violations) == 0 &&
		len(t.dirty.appeals) == 0 &&
		len(t.dirty.refunds) == 0 &&
		!t.dirty.meta
}

// rollback reverts all staged writes in reverse order
func (t *txn) rollback() {
	for _, fn := range slices.Backward(t.undo) {
		fn()
	}
	t.undo = nil
	t.entries = nil
	t.payout = nil
	t.onCommit = nil
}

// afterCommit registers fn to run once the operation has committed
func (t *txn) afterCommit(fn func()) {
	t.onCommit = append(t.onCommit, fn)
}

func (t *txn) setRole(role Role, p Principal, granted bool) {
	members := t.state().roles[role]
	_, had := members[p]
	if had == granted {
		return
	}
	if granted {
		members[p] = struct{}{}
		t.undo = append(t.undo, func() { delete(members, p) })
	} else {
		delete(members, p)
		t.undo = append(t.undo, func() { members[p] = struct{}{} })
	}
	t.dirty.roles[roleKey{role: role, principal: p}] = granted
}

func (t *txn) putOfficer(o Officer) {
	s := t.state()
	// Active is derived, never stored
	o.Active = false
	prev, had := s.officers[o.Principal]
	s.officers[o.Principal] = o
	t.undo = append(t.undo, func() {
		if had {
			s.officers[o.Principal] = prev
		} else {
			delete(s.officers, o.Principal)
		}
	})
	t.dirty.officers[o.Principal] = struct{}{}
}

func (t *txn) putOffense(o Offense) {
	s := t.state()
	prev, had := s.offenses[o.Code]
	s.offenses[o.Code] = o
	t.undo = append(t.undo, func() {
		if had {
			s.offenses[o.Code] = prev
		} else {
			delete(s.offenses, o.Code)
		}
	})
	t.dirty.offenses[o.Code] = struct{}{}
}

// putViolation stores the violation, indexing it by vehicle when new
func (t *txn) putViolation(v Violation) {
	s := t.state()
	prev, had := s.violations[v.ID]
	s.violations[v.ID] = v
	if !had {
		prevIdx := s.vehicles[v.VehicleID]
		// Clip capacity so the append never writes into a shared backing array
		s.vehicles[v.VehicleID] = append(slices.Clip(prevIdx), v.ID)
		t.undo = append(t.undo, func() {
			if len(prevIdx) == 0 {
				delete(s.vehicles, v.VehicleID)
			} else {
				s.vehicles[v.VehicleID] = prevIdx
			}
		})
	}
	t.undo = append(t.undo, func() {
		if had {
			s.violations[v.ID] = prev
		} else {
			delete(s.violations, v.ID)
		}
	})
	t.dirty.violations[v.ID] = struct{}{}
}

func (t *txn) putAppeal(a Appeal) {
	s := t.state()
	prev, had := s.appeals[a.ViolationID]
	s.appeals[a.ViolationID] = a
	t.undo = append(t.undo, func() {
		if had {
			s.appeals[a.ViolationID] = prev
		} else {
			delete(s.appeals, a.ViolationID)
		}
	})
	t.dirty.appeals[a.ViolationID] = struct{}{}
}

func (t *txn) setRefund(p Principal, amount uint64) {
	s := t.state()
	prev := s.refunds[p]
	if amount == 0 {
		delete(s.refunds, p)
	} else {
		s.refunds[p] = amount
	}
	t.undo = append(t.undo, func() {
		if prev == 0 {
			delete(s.refunds, p)
		} else {
			s.refunds[p] = prev
		}
	})
	t.dirty.refunds[p] = struct{}{}
}

// updateMeta applies fn to the singleton fields (statistics, switches,
// counters) with undo
func (t *txn) updateMeta(fn func(*state)) {
	s := t.state()
	prev := metaSnapshot{
		stats:        s.stats,
		upgrade:      s.upgrade,
		violationSeq: s.violationSeq,
		auditSeq:     s.auditSeq,
		auditHead:    s.auditHead,
		paused:       s.paused,
	}
	fn(s)
	t.undo = append(t.undo, func() {
		s.stats = prev.stats
		s.upgrade = prev.upgrade
		s.violationSeq = prev.violationSeq
		s.auditSeq = prev.auditSeq
		s.auditHead = prev.auditHead
		s.paused = prev.paused
	})
	t.dirty.meta = true
}

type metaSnapshot struct {
	upgrade      Upgrade
	stats        Statistics
	violationSeq uint64
	auditSeq     uint64
	auditHead    AuditHash
	paused       bool
}

// transfer schedules the outbound value movement for this operation. It
// runs after all bookkeeping is staged and before anything is committed.
func (t *txn) transfer(to Principal, amount uint64) {
	t.payout = &transfer{to: to, amount: amount}
}

// emit appends an audit entry linked to the current chain head
func (t *txn) emit(
	eventType AuditEventType,
	subject string,
	attrs map[string]string,
) error {
	s := t.state()
	entry := AuditEntry{
		Seq:      s.auditSeq + 1,
		Type:     eventType,
		Time:     t.now,
		Actor:    t.caller,
		Subject:  subject,
		Attrs:    maps.Clone(attrs),
		PrevHash: s.auditHead,
	}
	hash, err := entry.ComputeHash()
	if err != nil {
		return err
	}
	entry.Hash = hash
	t.updateMeta(func(s *state) {
		s.auditSeq = entry.Seq
		s.auditHead = entry.Hash
	})
	t.entries = append(t.entries, entry)
	return nil
}
