package main

import (
	"os"

	"signcoach/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
