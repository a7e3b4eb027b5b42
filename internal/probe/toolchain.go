package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CheckRunner answers whether a header is usable with the target compiler.
// The boolean is only meaningful when the error is nil: an error means the
// check itself could not run, not that the header is missing.
type CheckRunner interface {
	Check(ctx context.Context, cc, header string) (bool, error)
}

// ExecRunner probes headers by invoking the configured compiler in
// preprocess-only mode. The compiler exiting non-zero is the normal way a
// header turns out to be absent.
type ExecRunner struct{}

func (ExecRunner) Check(ctx context.Context, cc, header string) (bool, error) {
	cmd := exec.CommandContext(ctx, cc, "-E", "-x", "c", "-")
	cmd.Stdin = strings.NewReader(fmt.Sprintf("#include <%s>\n", header))
	err := cmd.Run()
	if err == nil {
		return true, nil
	}

	if ctx.Err() != nil {
		return false, fmt.Errorf("compiler %q timed out on %q: %w", cc, header, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("compiler %q could not run: %w", cc, err)
}
