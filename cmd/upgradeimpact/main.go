package main

import (
	"os"

	"upgradeimpact/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
