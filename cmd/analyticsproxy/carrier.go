package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newCarrierCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "carrier <mccmnc>",
		Short:   "Resolve an MCC-MNC to a carrier name",
		Example: "  analyticsproxy carrier 22288",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			info := a.carriers.Lookup(cmd.Context(), args[0])

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}
