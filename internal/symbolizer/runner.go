package symbolizer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	apperrors "github.com/macprof-analysis/pkg/errors"
)

// CommandRunner runs an external tool and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands as subprocesses.
type ExecRunner struct{}

// Run runs "name args..." and returns stdout. On failure the error carries
// the tool's stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		msg := fmt.Sprintf("failed to run %s", name)
		if text := strings.TrimSpace(stderr.String()); text != "" {
			msg += ": " + text
		}
		return nil, apperrors.Wrap(apperrors.CodeToolError, msg, err)
	}
	return stdout.Bytes(), nil
}
