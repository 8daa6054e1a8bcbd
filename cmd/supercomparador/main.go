// Package main is the entry point for the supercomparador CLI.
package main

import (
	"os"

	"github.com/maltedev/supercomparador/cmd/supercomparador/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
