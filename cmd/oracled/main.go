package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/convictiond/oracled/config"
)

// main establishes the daemon's command tree using cobra, the same shape
// rivined's main.go hands off to daemon.SetupDefaultDaemon: load
// environment/TOML configuration first, bind CLI flags on top of it, then
// let cobra parse argv so an explicit flag always wins over an env var.
func main() {
	loaded, err := config.LoadEnv(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Println("failed to load configuration:", err)
		os.Exit(1)
	}

	cmds := &commands{cfg: oracledConfig{Config: loaded}}

	root := &cobra.Command{
		Use:   "oracled",
		Short: "Conviction oracle daemon",
		Long:  "oracled ingests token transfer activity, scores holder conviction, and serves the results over HTTP, WebSocket, and webhooks.",
		Run:   cmds.rootCommand,
	}
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   cmds.versionCommand,
	})
	cmds.cfg.Config.RegisterAsFlags(root.Flags())

	if err := root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
