// Package main provides the entry point for the pupil-biou command.
package main

import (
	"os"

	"pupil-biou/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
