package main

import (
	"os"

	"github.com/fintalk-io/fintalk/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
