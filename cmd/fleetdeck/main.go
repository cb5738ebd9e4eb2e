// Package main is the single-binary entrypoint for FleetDeck.
package main

import "github.com/fleetdeck/fleetdeck/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
