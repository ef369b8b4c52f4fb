// Package main provides the entry point for the roomdex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/roomdex/cmd/roomdex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
