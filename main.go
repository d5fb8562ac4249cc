package main

import (
	"os"

	"github.com/gauntlet-ci/gauntlet/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
