package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/swissMack/pve1-sub007/analytics"
)

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var q analytics.Query

	cmd := &cobra.Command{
		Use:     "query",
		Short:   "Run one analytics query against the downstream service",
		Example: "  analyticsproxy query --period 2026-03 --customer acme --imsi 222880000000001",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cfg.RequireAnalytics(); err != nil {
				return err
			}

			result, err := a.analytics.Query(cmd.Context(), q)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&q.Period, "period", "", "reporting month (YYYY-MM)")
	flags.StringVar(&q.CustomerID, "customer", "", "customer identifier")
	flags.StringSliceVar(&q.IMSIs, "imsi", nil, "subscriber IMSI (repeatable or comma-separated)")
	_ = cmd.MarkFlagRequired("period")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("imsi")

	return cmd
}
