package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var runTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one simulated firmware distribution to completion",
	Long: `Builds an in-memory router and node set from the config file,
triggers a firmware push, and waits for every node to either verify the
image (PROCESS_COMPLETED) or reject it (CHECKSUM_FAILED), printing each
node's final STATUS resource.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSimCommand()
	},
}

func init() {
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 10*time.Minute,
		"how long to wait for the simulation to settle")
}

func runSimCommand() {
	cfg, err := loadSimConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}

	sim := newSimulation(cfg)
	defer sim.stop()

	if err := sim.trigger(cfg.FragmentByteCount); err != nil {
		fmt.Fprintf(os.Stderr, "Error: trigger firmware: %v\n", err)
		os.Exit(1)
	}

	deadline := time.After(runTimeout)
	settled := make(map[string]bool, len(sim.nodes))

	for len(settled) < len(sim.nodes) {
		select {
		case name := <-sim.done:
			settled[name] = true
		case <-deadline:
			fmt.Fprintf(os.Stderr, "timed out after %s waiting for %d/%d node(s)\n",
				runTimeout, len(settled), len(sim.nodes))
			printStatuses(sim)
			os.Exit(1)
		}
	}

	printStatuses(sim)
}

func printStatuses(sim *simulation) {
	sim.bus.sync(func() {
		fmt.Println(sim.router.engine.Status())
		for _, n := range sim.nodes {
			fmt.Println(n.engine.Status())
		}
	})
}
