// Command frostfile scans files and directory trees for content whose
// SHA-256 digest matches a known malware signature.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit statuses.
const (
	exitClean     = 0
	exitInfected  = 1
	exitFatal     = 2
	exitCancelled = 130
)

// exitError carries a process exit status through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp()
	defer a.shutdown(ctx)

	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitClean
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "frostfile:", exitErr.err)
		}
		return exitErr.code
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "frostfile:", err)
	return exitFatal
}
