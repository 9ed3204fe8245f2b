package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

type commands struct {
	cfg oracledConfig
}

// rootCommand runs with cmds.cfg already holding the env/TOML-loaded
// configuration with any CLI flags applied on top (RegisterAsFlags bound
// the flags directly onto cfg.Config before cobra parsed argv), the same
// load-then-override order the daemon's config package documents.
func (cmds *commands) rootCommand(*cobra.Command, []string) {
	if err := runDaemon(cmds.cfg.Config); err != nil {
		fmt.Println("daemon failed:", err)
	}
}

func (cmds *commands) versionCommand(*cobra.Command, []string) {
	fmt.Printf("Conviction Oracle Daemon v%s\r\n", version)
	fmt.Println()
	fmt.Printf("Go Version   v%s\r\n", runtime.Version()[2:])
	fmt.Printf("GOOS         %s\r\n", runtime.GOOS)
	fmt.Printf("GOARCH       %s\r\n", runtime.GOARCH)
}
