// Package main is the entry point for the tello-renewal CLI.
package main

import (
	"os"

	"tello-renewal/cmd/cli/cmd"
	"tello-renewal/internal/logging"
)

func main() {
	err := cmd.Execute()
	logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}
