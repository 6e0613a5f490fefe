package main

import (
	"os"

	"github.com/Lllllllleong/ocrflow/cmd/ocrflow/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
