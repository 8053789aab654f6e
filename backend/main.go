package main

import (
	"os"

	"github.com/bluebridge/termsheet-ingest/backend/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
