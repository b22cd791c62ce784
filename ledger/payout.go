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
	"fmt"
	"io"
	"log/slog"
)

// Payout moves value out of ledger custody. It is called while the ledger
// holds its write lock. A mutating Ledger call made with the context passed
// to Transfer fails with ErrReentrantCall; reads and calls made with any
// other context wait for the lock and never return. A returned error aborts
// the whole operation.
type Payout interface {
	Transfer(ctx context.Context, to Principal, amount uint64) error
}

// PayoutFunc adapts a function to the Payout interface
type PayoutFunc func(ctx context.Context, to Principal, amount uint64) error

func (f PayoutFunc) Transfer(
	ctx context.Context,
	to Principal,
	amount uint64,
) error {
	return f(ctx, to, amount)
}

// LoggingPayout records transfers in the log without moving real value. It
// stands in for a custody integration.
type LoggingPayout struct {
	logger *slog.Logger
}

func NewLoggingPayout(logger *slog.Logger) *LoggingPayout {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &LoggingPayout{logger: logger}
}

func (p *LoggingPayout) Transfer(
	ctx context.Context,
	to Principal,
	amount uint64,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if to.IsZero() {
		return fmt.Errorf("transfer to empty principal")
	}
	p.logger.Info(
		"payout",
		"component", "payout",
		"to", to,
		"amount", amount,
	)
	return nil
}
