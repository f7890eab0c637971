package main

import (
	"os"

	"github.com/mverdier/parley/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
