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

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/TechTribalist/Traffic/api"
	"github.com/TechTribalist/Traffic/ledger"
	"github.com/spf13/cobra"
)

func tokenCommand() *cobra.Command {
	var principal string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:          "token",
		Short:        "Issue an API bearer token for a principal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFromCommand(cmd)
			if ttl <= 0 {
				return fmt.Errorf("invalid ttl: %s", ttl)
			}
			secret, err := cfg.TokenSecret()
			if err != nil {
				return err
			}
			if len(secret) == 0 {
				return errors.New("no API token secret is configured")
			}
			tokens, err := api.NewTokenManager(secret)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(ledger.Principal(principal), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&principal, "principal", "p", "", "principal the token authenticates")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("principal")
	return cmd
}
