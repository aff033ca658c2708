package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/splitkit/splitkit/internal/cli"
)

func main() {
	// Load .env if present; real environment variables win.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
