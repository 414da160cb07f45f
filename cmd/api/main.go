package main

import (
	"log"

	"proposaldesk/api/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Fatalf("proposaldesk: %v", err)
	}
}
