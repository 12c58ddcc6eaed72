package main

import (
	"os"

	"github.com/goliatone/go-formbuilder/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
