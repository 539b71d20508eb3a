// Package main provides the remipn entry point.
package main

import (
	"fmt"
	"os"

	"github.com/rennerdo30/remipn/internal/cli"
	"github.com/rennerdo30/remipn/internal/logging"
)

func main() {
	err := cli.NewRootCommand(cli.NewApp()).Execute()
	_ = logging.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
