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
	"errors"
	"fmt"
)

// Every failed operation wraps exactly one of these
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("invalid state")
	ErrInvalidInput   = errors.New("invalid input")
	ErrRateLimited    = errors.New("daily violation limit reached")
	ErrPaused         = errors.New("system paused")
	ErrTransferFailed = errors.New("transfer failed")
)

var (
	ErrReentrantCall = fmt.Errorf(
		"%w: value transfer already in progress",
		ErrInvalidState,
	)
	ErrInsufficientFunds = fmt.Errorf(
		"%w: insufficient custody balance",
		ErrInvalidState,
	)
)

// ErrorKind returns a short label for the error class, used for metrics and
// API responses
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrReentrantCall):
		return "reentrant"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrPaused):
		return "paused"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	default:
		return "internal"
	}
}
