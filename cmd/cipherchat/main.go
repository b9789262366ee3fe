package main

import (
	"os"

	"cipherchat/cmd/cipherchat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
