package main

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "otasim",
	Short: "Simulate a multicast firmware-OTA session across a router and a set of nodes",
	Long: `otasim runs package engine's router and node roles against an
in-memory transport bus, for manual exercise of the recovery protocol,
the checksum pipeline, and the activation handshake without any real
mesh radio underneath.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "otasim.yaml",
		"simulation config file (YAML)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
