package main

import (
	"os"

	"github.com/dl-alexandre/icdl/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
