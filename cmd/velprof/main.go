package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/velang/velprof/cmd/velprof/commands"
)

func main() {
	// Optional .env for VELPROF_* resource limits.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("could not load .env:", err)
		}
	}
	commands.Execute()
}
