// Command otasim drives an in-memory simulation of one router and several
// nodes running package engine, for manual exercise of the protocol without
// a real mesh radio underneath it.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
