// Package main is the entry point for the scrcored daemon.
package main

import (
	"os"

	"github.com/jmylchreest/scrcore/cmd/scrcored/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
