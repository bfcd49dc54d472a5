// Package main is the entry point for the videodl application.
package main

import (
	"os"

	"github.com/jmylchreest/videodl/cmd/videodl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
