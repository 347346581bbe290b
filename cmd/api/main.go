// Command api serves run history, background runs and ad hoc FX analysis
// over HTTP.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/eshaffer321/recon-monitor/internal/cli"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/config"
)

func main() {
	flags, err := cli.ParseServeFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	cfg := config.LoadOrEnv_WithPath(flags.ConfigPath)

	if err := cli.RunServe(cfg, flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
