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
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func offensesCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "offenses",
		Short:        "List the offense catalog",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFromCommand(cmd)
			db, ls, err := openLedger(cfg, cliLogger(cfg))
			if err != nil {
				return err
			}
			defer db.Close()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tNAME\tAMOUNT\tACTIVE")
			for _, offense := range ls.OffenseCatalog() {
				fmt.Fprintf(
					tw,
					"%d\t%s\t%d\t%t\n",
					offense.Code,
					offense.Name,
					offense.Amount,
					offense.Active,
				)
			}
			return tw.Flush()
		},
	}
}
