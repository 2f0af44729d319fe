// Package main is the entry point for the clipfix CLI.
package main

import (
	"os"

	"github.com/runger/clipfix/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
