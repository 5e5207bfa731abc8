package main

import (
	"fmt"
	"os"

	"github.com/R3E-Network/marketplace/cmd/marketplace/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
