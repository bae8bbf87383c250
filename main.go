package main

import (
	"os"

	"github.com/felixgeelhaar/defectctl/internal/cli"
)

func main() {
	code := cli.Run(os.Args, os.Stdout, os.Stderr, cli.BuildService)
	os.Exit(code)
}
