// Command analyticsproxy serves usage analytics and carrier lookups on top of
// a cached OAuth2 client-credentials token.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
