// Package main provides the entry point for the metasearch CLI.
package main

import (
	"os"

	"github.com/searxng/searxng-sub003/cmd/metasearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
