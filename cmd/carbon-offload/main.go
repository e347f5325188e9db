package main

import (
	"fmt"
	"os"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "[carbon-offload] Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	root := newRootCmd(version)
	root.SetArgs(args)
	return root.Execute()
}
