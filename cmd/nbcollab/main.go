package main

import (
	"os"

	"nbcollab/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
