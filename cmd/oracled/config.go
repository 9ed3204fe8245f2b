package main

import "github.com/convictiond/oracled/config"

// version is stamped into the startup banner and the /daemon-equivalent
// status line, mirroring rivine's ChainVersion reporting.
const version = "0.1.0"

// oracledConfig bundles the shared Config with the one CLI-only knob
// (an optional TOML overlay path) that config.LoadEnv needs but Config
// itself has no business carrying.
type oracledConfig struct {
	config.Config
	ConfigFile string
}
