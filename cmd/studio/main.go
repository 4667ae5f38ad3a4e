package main

import (
	"os"

	"github.com/psantana5/denoise-studio/cmd/studio/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
