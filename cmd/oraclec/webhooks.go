package main

import (
	"github.com/spf13/cobra"
)

func webhookCommand(c *client) *cobra.Command {
	root := &cobra.Command{
		Use:   "webhook",
		Short: "Manage outbound webhook subscriptions",
	}
	root.AddCommand(webhookListCommand(c), webhookCreateCommand(c), webhookDeleteCommand(c))
	return root
}

func webhookListCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your webhook subscriptions",
		Run: func(*cobra.Command, []string) {
			res, err := c.get("/api/v1/webhooks", nil)
			if err != nil {
				printErr(err)
				return
			}
			printJSON(res)
		},
	}
}

func webhookCreateCommand(c *client) *cobra.Command {
	var events []string
	cmd := &cobra.Command{
		Use:   "create <url>",
		Short: "Register a new webhook subscription",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			res, err := c.post("/api/v1/webhooks", map[string]interface{}{
				"url":    args[0],
				"events": events,
			})
			if err != nil {
				printErr(err)
				return
			}
			printJSON(res)
		},
	}
	cmd.Flags().StringSliceVar(&events, "events", []string{"k_change"}, "event types to subscribe to")
	return cmd
}

func webhookDeleteCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a webhook subscription",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if _, err := c.do("DELETE", "/api/v1/webhooks/"+args[0], nil, nil); err != nil {
				printErr(err)
				return
			}
		},
	}
}
