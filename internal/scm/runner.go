package scm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/masmgr/revtrack/internal/errs"
)

// Runner executes an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner returns a Runner backed by os/exec. extraEnv is appended to the
// process environment (e.g. "P4PASSWD=...").
//
// Failures to start the command, or a cancelled context, are reported as
// connection errors. A command that runs and exits non-zero is a query error
// unless its output says the server could not be reached.
func ExecRunner(extraEnv ...string) Runner {
	return ExecStdinRunner("", extraEnv...)
}

// ExecStdinRunner is ExecRunner with stdin fed to every command, e.g. a
// password read by "svn --password-from-stdin".
func ExecStdinRunner(stdin string, extraEnv ...string) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Env = append(os.Environ(), extraEnv...)
		if stdin != "" {
			cmd.Stdin = strings.NewReader(stdin)
		}
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		op := name + " " + firstCommand(args)
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return nil, errs.E(errs.Connection, op, ctx.Err())
			}
			msg := strings.TrimSpace(stderr.String())
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) || looksUnreachable(msg) {
				return nil, errs.E(errs.Connection, op, fmt.Errorf("%w: %s", err, msg))
			}
			return nil, errs.E(errs.Query, op, fmt.Errorf("%w: %s", err, msg))
		}
		return stdout.Bytes(), nil
	}
}

// firstCommand returns the first argument that is not a flag or a flag value,
// which for p4 and svn is the subcommand.
func firstCommand(args []string) string {
	skipNext := false
	for _, a := range args {
		if skipNext {
			skipNext = false
			continue
		}
		if strings.HasPrefix(a, "-") {
			// Global flags with a separate value.
			switch a {
			case "-p", "-u", "-c", "-P", "--username", "--password":
				skipNext = true
			}
			continue
		}
		return a
	}
	return ""
}

var unreachableMarkers = []string{
	"connect to server failed",
	"unable to connect",
	"connection refused",
	"could not resolve host",
	"no route to host",
	"timed out",
}

func looksUnreachable(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range unreachableMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
