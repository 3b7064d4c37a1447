package main

import (
	"fmt"
	"io"
	"os"
)

const defaultPassEnv = "LENDCHAIN_COUNCIL_PASS"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "digest":
		return runDigest(args[1:], stdout, stderr)
	case "sign":
		return runSign(args[1:], stdout, stderr)
	case "combine":
		return runCombine(args[1:], stdout, stderr)
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "check-genesis":
		return runCheckGenesis(args[1:], stdout, stderr)
	case "export":
		return runExport(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return `Usage: mortgagectl <command> [flags]

Commands:
  digest         print the council digest of an admin action
  sign           sign an admin action with a council keystore
  combine        merge council signatures into an approval
  keygen         create a council keystore
  token          mint a bearer token for the mortgaged API
  check-genesis  validate a genesis file
  export         write journaled events to a parquet file`
}
