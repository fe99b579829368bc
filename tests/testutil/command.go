package testutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// CommandResult holds what a cobra command wrote while it ran.
type CommandResult struct {
	Stdout string
	Stderr string
	Err    error
}

// ExecuteCommand runs cmd with args, feeding stdin and capturing both output
// streams. Usage and error printing are silenced so only the command's own
// output is captured.
func ExecuteCommand(t *testing.T, cmd *cobra.Command, stdin string, args ...string) CommandResult {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	return CommandResult{Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
}
