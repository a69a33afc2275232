package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

const usage = `tabris - remote debug console for mobile apps

Usage:
  tabris <command> [options]

Commands:
  serve         Start the debug server and the interactive console
  sessions      List recorded debug sessions
  version       Print the version
Run 'tabris <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "serve":
		return runServe(args[2:], stdout, stderr)
	case "sessions":
		return runSessions(args[2:], stdout, stderr)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "tabris %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
