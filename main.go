package main

import (
	"os"

	"github.com/kfoerderer/gridcontrol-bems-sub001/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
