// Package main provides the entry point for the foundry CLI.
package main

import (
	"os"

	"github.com/foundrydev/foundry/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
