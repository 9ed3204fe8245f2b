package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func statusCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show oracle sync and gating status",
		Run: func(*cobra.Command, []string) {
			res, err := c.get("/k-metric/status", nil)
			if err != nil {
				printErr(err)
				return
			}
			printJSON(res)
		},
	}
}

func tokenCommand(c *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <mint>",
		Short: "Fetch a token's K score",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			res, err := c.get("/api/v1/token/"+args[0], nil)
			if err != nil {
				printErr(err)
				return
			}
			printJSON(res)
		},
	}
	return cmd
}

func walletCommand(c *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet <address>",
		Short: "Fetch a wallet's balance and K_wallet score",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			res, err := c.get("/api/v1/wallet/"+args[0], nil)
			if err != nil {
				printErr(err)
				return
			}
			printJSON(res)
		},
	}
	return cmd
}

func holdersCommand(c *client) *cobra.Command {
	var limit int
	var excludePools bool
	cmd := &cobra.Command{
		Use:   "holders",
		Short: "List qualifying holders of the primary token",
		Run: func(*cobra.Command, []string) {
			q := url.Values{}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if excludePools {
				q.Set("exclude_pools", "true")
			}
			res, err := c.get("/k-metric/holders", q)
			if err != nil {
				printErr(err)
				return
			}
			printJSON(res)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum holders to return")
	cmd.Flags().BoolVar(&excludePools, "exclude-pools", false, "exclude known AMM/pool addresses")
	return cmd
}

func printErr(err error) {
	fmt.Fprintln(os.Stderr, "oraclec: error:", err)
}
