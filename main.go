package main

import (
	"os"

	"shopload/cli"
)

func main() {
	os.Exit(cli.Execute())
}
