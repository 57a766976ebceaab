// Package main is the entry point for the placeholder-cache application
package main

import (
	"github.com/ethpandaops/placeholder-cache/cmd"
)

func main() {
	cmd.Execute()
}
