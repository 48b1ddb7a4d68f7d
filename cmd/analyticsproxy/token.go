package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Perform one client-credentials exchange",
		Long: `Fetches a token from the configured token endpoint and reports the cache state.
Useful to check credentials before starting the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if !a.credentials.Enabled() {
				fmt.Fprintln(out, "pass-through mode: no token endpoint configured")
				return nil
			}

			token, err := a.credentials.GetToken(cmd.Context())
			if err != nil {
				return err
			}

			if !show {
				token = redact(token)
			}
			fmt.Fprintf(out, "token: %s\nstate: %s\n", token, a.credentials.State())
			return nil
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "print the full access token")
	return cmd
}

// redact keeps a short prefix of a credential for recognition.
func redact(token string) string {
	const keep = 8
	if len(token) <= keep {
		return "***"
	}
	return token[:keep] + "..."
}
