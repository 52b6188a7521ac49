package main

import (
	"fmt"
	"os"
)

func main() {
	exitCode := 0
	root := newRootCmd(&exitCode)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
