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
	"fmt"
	"strings"
	"time"
)

const (
	// UnitsPerCurrencyUnit converts catalog amounts into ledger units
	UnitsPerCurrencyUnit uint64 = 1_000_000
	// DailyViolationLimit is the per-officer issuance ceiling per UTC day
	DailyViolationLimit = 50
)

// Field length bounds, in bytes
const (
	MaxPrincipalLen    = 128
	MaxOfficerNameLen  = 64
	MaxBadgeLen        = 32
	MaxVehicleIDLen    = 32
	MaxEvidenceRefLen  = 128
	MaxAppealReasonLen = 1000
	MaxResolutionLen   = 1000
	MaxUpgradeLen      = 128
	MaxOffenseNameLen  = 64
)

const secondsPerDay = 86400

// dayOf returns the UTC day number used for rate limiting
func dayOf(t time.Time) int64 {
	return t.Unix() / secondsPerDay
}

func validatePrincipal(p Principal) error {
	if p.IsZero() {
		return fmt.Errorf("%w: principal must not be empty", ErrInvalidInput)
	}
	if len(p) > MaxPrincipalLen {
		return fmt.Errorf(
			"%w: principal exceeds %d bytes",
			ErrInvalidInput,
			MaxPrincipalLen,
		)
	}
	return nil
}

// validateText checks a required string field against its upper bound
func validateText(field, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s must not be empty", ErrInvalidInput, field)
	}
	return validateOptionalText(field, value, maxLen)
}

func validateOptionalText(field, value string, maxLen int) error {
	if len(value) > maxLen {
		return fmt.Errorf(
			"%w: %s exceeds %d bytes",
			ErrInvalidInput,
			field,
			maxLen,
		)
	}
	return nil
}

// addUnits adds two ledger amounts, failing on overflow
func addUnits(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("%w: amount overflow", ErrInvalidState)
	}
	return sum, nil
}

// fineUnits converts a catalog amount into ledger units
func fineUnits(amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, fmt.Errorf("%w: fine amount must be positive", ErrInvalidInput)
	}
	if amount > ^uint64(0)/UnitsPerCurrencyUnit {
		return 0, fmt.Errorf("%w: fine amount overflows ledger units", ErrInvalidInput)
	}
	return amount * UnitsPerCurrencyUnit, nil
}
