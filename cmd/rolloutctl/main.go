// Package main provides the rolloutctl binary, an offline companion to
// rolloutd that checks rollout plan files before they are submitted.
//
// Usage:
//
//	rolloutctl <command> [flags] [args...]
//
// Commands:
//
//	version                        - Show version
//	check [-now TS] <plan.yaml>    - Validate a plan and print its schedule
//	request [-now TS] <plan.yaml>  - Print the create-deployment body as JSON
//
// A plan file may be "-" to read from stdin. TS is an RFC 3339 instant used
// in place of the current time for immediate plans.
package main

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Version information (set by build flags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Exit codes
const (
	ExitOK          = 0
	ExitInvalidPlan = 1
	ExitUsage       = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, time.Now))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, now func() time.Time) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: rolloutctl <command> [flags] [args...]")
		return ExitUsage
	}

	env := &cliEnv{stdin: stdin, stdout: stdout, stderr: stderr, now: now}

	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "rolloutctl %s (built %s)\n", Version, BuildTime)
		return ExitOK
	case "check":
		return env.checkCmd(args[1:])
	case "request":
		return env.requestCmd(args[1:])
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		return ExitUsage
	}
}
