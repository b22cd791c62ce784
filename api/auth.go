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

package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TechTribalist/Traffic/ledger"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer    = "traffic"
	minSecretBytes = 32
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// TokenManager issues and verifies HS256 bearer tokens. The token subject is
// the caller principal.
type TokenManager struct {
	clock  func() time.Time
	secret []byte
}

func NewTokenManager(secret []byte) (*TokenManager, error) {
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf(
			"token secret must be at least %d bytes",
			minSecretBytes,
		)
	}
	return &TokenManager{
		secret: append([]byte(nil), secret...),
		clock:  time.Now,
	}, nil
}

// Issue signs a token for the principal valid for ttl
func (m *TokenManager) Issue(
	principal ledger.Principal,
	ttl time.Duration,
) (string, error) {
	if principal.IsZero() {
		return "", errors.New("principal must not be empty")
	}
	now := m.clock()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   principal.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and validity window and returns the subject
func (m *TokenManager) Verify(tokenString string) (ledger.Principal, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (any, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	principal := ledger.Principal(claims.Subject)
	if principal.IsZero() {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return principal, nil
}

// bearerToken extracts the token from an Authorization header value
func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
