package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a simulation config file without running it",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadSimConfig(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("VALID: session %s, %d byte(s) over %d-byte fragments, %d node(s)\n",
			cfg.SessionID, cfg.TotalByteCount, cfg.FragmentByteCount, len(cfg.Nodes))
	},
}
