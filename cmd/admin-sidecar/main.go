package main

import (
	"fmt"
	"os"

	"github.com/yndnr/admin-sidecar/internal/core/supervisor"
)

func main() {
	// A re-executed trampoline becomes the monitored service here.
	if supervisor.Init() {
		return
	}

	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	return newApp().Run(args)
}
