package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"council-trader/internal/cli"
)

func main() {
	// Optional .env for local development; a missing file is fine.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
