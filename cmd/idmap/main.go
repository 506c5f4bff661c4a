// Command idmap inspects and maintains the id map tables of data migrations.
//
// Usage:
//
//	idmap [--config idmap.yaml] [--db URL] [--definitions DIR] <command> [args]
//
// Run "idmap --help" for the command list.
package main

import (
	"os"

	"github.com/roach88/idmap/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:], os.Stdout, os.Stderr))
}
