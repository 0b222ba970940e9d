package main

import (
	"os"

	"shop-sync-service/internal/cli"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
