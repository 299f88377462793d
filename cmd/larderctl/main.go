package main

import (
	"os"

	"github.com/agentoven/larder/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
