// Command sidecar runs the dashboard sidecar: an authenticated HTTP server
// that streams agent conversations and serves workspace data.
package main

import (
	"fmt"
	"io"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServeCommand(args, stderr)
	case "token":
		err = runTokenCommand(args, stdout)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "sidecar %s\n", version)
	case "help", "--help", "-h":
		printUsage(stdout)
	default:
		printUsage(stderr)
		err = withExitCode(fmt.Errorf("unknown command %q", cmd), 2)
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCodeForError(err)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: sidecar [command] [flags]

Commands:
  serve     run the HTTP server (default)
  token     mint a bearer token for the configured secret
  version   print the version

Configuration is read from $SIDECAR_CONFIG (default ~/.clawdbot/sidecar.yaml)
and the environment.
`)
}
