// Package main is the entry point for the esigate CLI.
package main

import "github.com/evetools/esigate/internal/cli"

func main() {
	cli.Execute()
}
