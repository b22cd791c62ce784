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

// Package report derives dashboard statistics from the ledger audit stream
package report

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/TechTribalist/Traffic/event"
	"github.com/TechTribalist/Traffic/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrSequenceGap   = errors.New("audit sequence gap")
	ErrChainMismatch = errors.New("audit entry does not extend the known head")
)

// Source provides ordered audit entries for replay and gap recovery
type Source interface {
	AuditEntries(from uint64, limit int) []ledger.AuditEntry
}

type DashboardConfig struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	Source       Source
	PromRegistry prometheus.Registerer
}

// Summary is a point-in-time view of the projection
type Summary struct {
	ViolationsByOffense map[uint16]uint64  `json:"violationsByOffense"`
	PendingAppeals      []string           `json:"pendingAppeals"`
	ActiveOfficers      []ledger.Principal `json:"activeOfficers"`
	LastSeq             uint64             `json:"lastSeq"`
	ViolationsIssued    uint64             `json:"violationsIssued"`
	ViolationsPaid      uint64             `json:"violationsPaid"`
	FinesCollected      uint64             `json:"finesCollected"`
	RefundsQueued       uint64             `json:"refundsQueued"`
	RefundsClaimed      uint64             `json:"refundsClaimed"`
	Withdrawn           uint64             `json:"withdrawn"`
	ComplianceRate      float64            `json:"complianceRate"`
	Paused              bool               `json:"paused"`
}

// Dashboard is a projection of the audit stream. It only ever reads audit
// entries, never ledger entities.
type Dashboard struct {
	config         DashboardConfig
	metrics        dashboardMetrics
	registered     map[ledger.Principal]struct{}
	officerRole    map[ledger.Principal]struct{}
	pendingAppeals map[string]struct{}
	paid           map[string]struct{}
	byOffense      map[uint16]uint64
	lastHash       ledger.AuditHash
	lastSeq        uint64
	issued         uint64
	collected      uint64
	refundsQueued  uint64
	refundsClaimed uint64
	withdrawn      uint64
	subId          event.EventSubscriberId
	mu             sync.RWMutex
	paused         bool
}

func NewDashboard(cfg DashboardConfig) *Dashboard {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "report")
	d := &Dashboard{
		config:         cfg,
		registered:     make(map[ledger.Principal]struct{}),
		officerRole:    make(map[ledger.Principal]struct{}),
		pendingAppeals: make(map[string]struct{}),
		paid:           make(map[string]struct{}),
		byOffense:      make(map[uint16]uint64),
	}
	if cfg.PromRegistry != nil {
		d.metrics.init(cfg.PromRegistry)
	}
	return d
}

// Start subscribes to live audit events and then catches up from the
// source. Entries seen through both paths are applied once.
func (d *Dashboard) Start() error {
	if d.config.EventBus != nil {
		d.subId = d.config.EventBus.SubscribeFunc(
			ledger.AuditEventBusType,
			d.handleEvent,
		)
	}
	if d.config.Source == nil {
		return nil
	}
	return d.Resync()
}

func (d *Dashboard) Stop() {
	if d.config.EventBus != nil && d.subId != 0 {
		d.config.EventBus.Unsubscribe(ledger.AuditEventBusType, d.subId)
		d.subId = 0
	}
}

func (d *Dashboard) handleEvent(evt event.Event) {
	entry, ok := evt.Data.(ledger.AuditEntry)
	if !ok {
		return
	}
	err := d.Apply(entry)
	if errors.Is(err, ErrSequenceGap) {
		d.config.Logger.Warn(
			"missed audit entries, resyncing",
			"last_seq", d.LastSeq(),
			"received_seq", entry.Seq,
		)
		err = d.Resync()
	}
	if err != nil {
		d.config.Logger.Error(
			"failed to apply audit entry",
			"seq", entry.Seq,
			"error", err,
		)
	}
}

// Resync applies every entry after the last one seen
func (d *Dashboard) Resync() error {
	if d.config.Source == nil {
		return fmt.Errorf("%w: no source to resync from", ErrSequenceGap)
	}
	d.metrics.incResyncs()
	return d.Replay(d.config.Source.AuditEntries(d.LastSeq()+1, 0))
}

// Replay applies entries in order, stopping at the first error
func (d *Dashboard) Replay(entries []ledger.AuditEntry) error {
	for _, entry := range entries {
		if err := d.Apply(entry); err != nil {
			return err
		}
	}
	return nil
}

// Apply folds one entry into the projection. Entries at or below the last
// applied sequence number are ignored.
func (d *Dashboard) Apply(entry ledger.AuditEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entry.Seq <= d.lastSeq {
		return nil
	}
	if entry.Seq != d.lastSeq+1 {
		return fmt.Errorf(
			"%w: have %d, got %d",
			ErrSequenceGap,
			d.lastSeq,
			entry.Seq,
		)
	}
	if entry.PrevHash != d.lastHash {
		return fmt.Errorf("%w: seq %d", ErrChainMismatch, entry.Seq)
	}
	if err := d.apply(entry); err != nil {
		return fmt.Errorf("audit entry %d: %w", entry.Seq, err)
	}
	d.lastSeq = entry.Seq
	d.lastHash = entry.Hash
	d.metrics.update(d.pendingAppealsCount(), d.complianceRate())
	return nil
}

func (d *Dashboard) apply(entry ledger.AuditEntry) error {
	principal := ledger.Principal(entry.Subject)
	switch entry.Type {
	case ledger.AuditOfficerRegistered, ledger.AuditOfficerReactivated:
		d.registered[principal] = struct{}{}
	case ledger.AuditRoleGranted, ledger.AuditRoleRevoked:
		if entry.Attrs["role"] != ledger.RoleOfficer.String() {
			return nil
		}
		if entry.Type == ledger.AuditRoleGranted {
			d.officerRole[principal] = struct{}{}
		} else {
			delete(d.officerRole, principal)
		}
	case ledger.AuditViolationLogged:
		code, err := strconv.ParseUint(entry.Attrs["offense"], 10, 16)
		if err != nil {
			return fmt.Errorf("offense code: %w", err)
		}
		d.issued++
		d.byOffense[uint16(code)]++
	case ledger.AuditFinePaid:
		amount, err := attrUnits(entry, "amount")
		if err != nil {
			return err
		}
		d.paid[entry.Subject] = struct{}{}
		d.collected += amount
	case ledger.AuditAppealSubmitted:
		d.pendingAppeals[entry.Subject] = struct{}{}
	case ledger.AuditAppealResolved:
		delete(d.pendingAppeals, entry.Subject)
	case ledger.AuditRefundQueued:
		amount, err := attrUnits(entry, "amount")
		if err != nil {
			return err
		}
		d.refundsQueued += amount
	case ledger.AuditRefundClaimed:
		amount, err := attrUnits(entry, "amount")
		if err != nil {
			return err
		}
		d.refundsClaimed += amount
	case ledger.AuditFundsWithdrawn:
		amount, err := attrUnits(entry, "amount")
		if err != nil {
			return err
		}
		d.withdrawn += amount
	case ledger.AuditPaused:
		d.paused = true
	case ledger.AuditUnpaused:
		d.paused = false
	}
	return nil
}

func attrUnits(entry ledger.AuditEntry, key string) (uint64, error) {
	amount, err := strconv.ParseUint(entry.Attrs[key], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return amount, nil
}

func (d *Dashboard) LastSeq() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeq
}

func (d *Dashboard) pendingAppealsCount() int {
	return len(d.pendingAppeals)
}

// complianceRate is the share of issued violations that have been paid
func (d *Dashboard) complianceRate() float64 {
	if d.issued == 0 {
		return 0
	}
	return float64(len(d.paid)) / float64(d.issued)
}

func (d *Dashboard) Summary() Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var active []ledger.Principal
	for p := range d.registered {
		if _, ok := d.officerRole[p]; ok {
			active = append(active, p)
		}
	}
	slices.Sort(active)
	return Summary{
		LastSeq:             d.lastSeq,
		ViolationsIssued:    d.issued,
		ViolationsPaid:      uint64(len(d.paid)),
		ComplianceRate:      d.complianceRate(),
		ViolationsByOffense: maps.Clone(d.byOffense),
		PendingAppeals:      slices.Sorted(maps.Keys(d.pendingAppeals)),
		ActiveOfficers:      active,
		FinesCollected:      d.collected,
		RefundsQueued:       d.refundsQueued,
		RefundsClaimed:      d.refundsClaimed,
		Withdrawn:           d.withdrawn,
		Paused:              d.paused,
	}
}
