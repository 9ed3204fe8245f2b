package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// main builds oraclec's command tree, mirroring rivinec's shape (one root
// cobra.Command, a handful of subcommands) but talking to oracled's HTTP
// API over net/http rather than rivine's blockchain-specific client
// package: there is no wallet/seed/block-explorer concept here for that
// package to serve, so oraclec is its own small REST client instead.
func main() {
	c := &client{}

	root := &cobra.Command{
		Use:   "oraclec",
		Short: "Conviction oracle CLI client",
	}
	root.PersistentFlags().StringVar(&c.addr, "addr", "http://localhost:8080", "oracled HTTP address")
	root.PersistentFlags().StringVar(&c.apiKey, "key", "", "API key (X-Oracle-Key)")

	root.AddCommand(
		statusCommand(c),
		tokenCommand(c),
		walletCommand(c),
		holdersCommand(c),
		webhookCommand(c),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "oraclec:", err)
		os.Exit(1)
	}
}
