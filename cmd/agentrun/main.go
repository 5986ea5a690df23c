package main

import (
	"os"

	"github.com/agentrun-io/agentrun/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
