// Package main is the entry point for the viewgraph application
package main

import (
	"github.com/ethpandaops/viewgraph/cmd"
)

func main() {
	cmd.Execute()
}
