package main

import (
	"os"

	"github.com/pay2run/pay2run/internal/cli"
)

func main() {
	runner := cli.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
