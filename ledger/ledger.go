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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/TechTribalist/Traffic/database"
	"github.com/TechTribalist/Traffic/event"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AuditEventBusType is the event bus type carrying committed AuditEntry values
const AuditEventBusType event.EventType = "ledger.audit"

const tracerName = "github.com/TechTribalist/Traffic/ledger"

type LedgerConfig struct {
	Logger       *slog.Logger
	Database     *database.Database
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Payout       Payout
	// Clock returns the current time. Defaults to time.Now
	Clock func() time.Time
	// BootstrapAdmin receives every role when the ledger is first created
	BootstrapAdmin Principal
}

// Ledger is the enforcement state machine. All mutations are serialized and
// either commit every write or none.
type Ledger struct {
	config       LedgerConfig
	state        *state
	journal      []AuditEntry
	metrics      ledgerMetrics
	tracer       trace.Tracer
	mu           sync.RWMutex
}

// transferKey marks the context handed to Payout.Transfer
type transferKey struct{}

func inTransfer(ctx context.Context) bool {
	marked, _ := ctx.Value(transferKey{}).(bool)
	return marked
}

// New creates a ledger. With a database configured, existing state is
// loaded; an empty database is bootstrapped and persisted.
func New(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "ledger")
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Payout == nil {
		return nil, errors.New("payout must be configured")
	}
	ls := &Ledger{
		config: cfg,
		state:  newState(),
		tracer: otel.Tracer(tracerName),
	}
	if cfg.PromRegistry != nil {
		ls.metrics.init(cfg.PromRegistry)
	}
	loaded := false
	if cfg.Database != nil {
		var err error
		loaded, err = ls.load()
		if err != nil {
			return nil, fmt.Errorf("load ledger state: %w", err)
		}
	}
	if !loaded {
		if err := ls.bootstrap(); err != nil {
			return nil, fmt.Errorf("bootstrap ledger: %w", err)
		}
	}
	ls.metrics.setState(ls.state)
	ls.config.Logger.Info(
		"ledger ready",
		"violations", ls.state.stats.TotalViolations,
		"audit_seq", ls.state.auditSeq,
		"paused", ls.state.paused,
	)
	return ls, nil
}

// bootstrap seeds the offense catalog and grants every role to the
// bootstrap principal
func (ls *Ledger) bootstrap() error {
	admin := ls.config.BootstrapAdmin
	if err := validatePrincipal(admin); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	t := newTxn(ls, admin)
	for _, offense := range defaultOffenses {
		t.putOffense(offense)
		if err := t.emit(
			AuditOffenseUpdated,
			offenseSubject(offense.Code),
			offenseAttrs(offense),
		); err != nil {
			t.rollback()
			return err
		}
	}
	for _, role := range AllRoles {
		if err := ls.grantRole(t, role, admin); err != nil {
			t.rollback()
			return err
		}
	}
	if err := ls.commit(context.Background(), t); err != nil {
		t.rollback()
		return err
	}
	ls.config.Logger.Info(
		"bootstrapped ledger",
		"admin", admin,
		"offenses", len(defaultOffenses),
	)
	return nil
}

type mutateOpts struct {
	role        Role
	whilePaused bool
}

// mutate runs one state-changing operation. Checks run in a fixed order:
// re-entry guard, caller identity, role, pause switch, then fn. Any failure
// leaves the state unchanged. Concurrent callers are serialized; a call made
// from inside a transfer with the transfer context fails with
// ErrReentrantCall instead of waiting on the lock its caller holds.
func (ls *Ledger) mutate(
	ctx context.Context,
	caller Principal,
	op string,
	opts mutateOpts,
	fn func(*txn) error,
) (err error) {
	ctx, span := ls.tracer.Start(
		ctx,
		"ledger."+op,
		trace.WithAttributes(attribute.String("caller", caller.String())),
	)
	defer func() {
		kind := ErrorKind(err)
		span.SetAttributes(attribute.String("result", kind))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			ls.config.Logger.Debug(
				"operation rejected",
				"op", op,
				"caller", caller,
				"error", err,
			)
		}
		span.End()
		ls.metrics.observe(op, kind)
	}()
	if inTransfer(ctx) {
		return ErrReentrantCall
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if caller.IsZero() {
		return fmt.Errorf("%w: anonymous caller", ErrUnauthorized)
	}
	if opts.role != 0 && !ls.state.hasRole(opts.role, caller) {
		return fmt.Errorf("%w: %s role required", ErrUnauthorized, opts.role)
	}
	if ls.state.paused && !opts.whilePaused {
		return ErrPaused
	}
	t := newTxn(ls, caller)
	if err := fn(t); err != nil {
		t.rollback()
		return err
	}
	if err := ls.commit(ctx, t); err != nil {
		t.rollback()
		return err
	}
	return nil
}


// commit stages the writes in the database, performs the pending transfer
// and then commits. The transfer is the last step that can fail before the
// database commit.
func (ls *Ledger) commit(ctx context.Context, t *txn) error {
	if t.empty() && t.payout == nil {
		return nil
	}
	db := ls.config.Database
	if db == nil {
		if err := ls.transfer(ctx, t); err != nil {
			return err
		}
	} else {
		cs, err := t.changeSet()
		if err != nil {
			return fmt.Errorf("build change set: %w", err)
		}
		transferred := false
		err = db.Transaction(true).Do(func(txn *database.Txn) error {
			if err := db.ApplyChangeSet(txn, cs); err != nil {
				return fmt.Errorf("stage changes: %w", err)
			}
			if err := ls.transfer(ctx, t); err != nil {
				return err
			}
			transferred = t.payout != nil && t.payout.amount > 0
			return nil
		})
		if err != nil {
			if transferred {
				ls.config.Logger.Error(
					"transfer completed but state commit failed",
					"to", t.payout.to,
					"amount", t.payout.amount,
					"error", err,
				)
			}
			return err
		}
	}
	ls.journal = append(ls.journal, t.entries...)
	for _, hook := range t.onCommit {
		hook()
	}
	ls.metrics.setState(ls.state)
	if bus := ls.config.EventBus; bus != nil {
		for _, entry := range t.entries {
			bus.Publish(AuditEventBusType, event.NewEvent(AuditEventBusType, entry))
		}
	}
	return nil
}

// transfer hands the pending payout to the collaborator. The context it
// receives marks any ledger call made with it as nested.
func (ls *Ledger) transfer(ctx context.Context, t *txn) error {
	if t.payout == nil || t.payout.amount == 0 {
		return nil
	}
	ctx = context.WithValue(ctx, transferKey{}, true)
	if err := ls.config.Payout.Transfer(ctx, t.payout.to, t.payout.amount); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}
