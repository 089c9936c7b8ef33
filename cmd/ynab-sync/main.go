package main

import (
	"os"

	"github.com/ynab-sync/ynab-sync/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
