// Package main is the entry point for swctl, the switch control plane.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/swctl/cmd"

	// Chip adapters register themselves with the driver registry.
	_ "firestige.xyz/swctl/internal/chip/ksz8463"
	_ "firestige.xyz/swctl/internal/chip/ksz8563"
	_ "firestige.xyz/swctl/internal/chip/ksz8795"
	_ "firestige.xyz/swctl/internal/chip/ksz8863"
	_ "firestige.xyz/swctl/internal/chip/ksz8864"
	_ "firestige.xyz/swctl/internal/chip/mv88e6060"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
