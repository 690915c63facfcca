package main

import (
	"os"

	"github.com/GoldenFealla/avplayer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
