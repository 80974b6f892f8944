package stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultBinary is the version-control executable used when none is configured.
const DefaultBinary = "git"

// Git implements Stager by running "git add -- <path>".
type Git struct {
	// Binary is the executable to run. Empty means DefaultBinary.
	Binary string
	// Dir is the working directory. Empty inherits the process cwd.
	Dir string
}

// NewGit returns a Git stager for the given binary and working directory.
func NewGit(binary, dir string) *Git {
	return &Git{Binary: binary, Dir: dir}
}

// Stage runs git add on path. Output is captured and dropped; stderr is only
// used to build the error message. A ctx deadline kills the process.
func (g *Git) Stage(ctx context.Context, path string) error {
	bin := g.Binary
	if bin == "" {
		bin = DefaultBinary
	}

	// "--" keeps a path starting with "-" from being read as an option.
	c := exec.CommandContext(ctx, bin, "add", "--", path) //nolint:gosec // G204: path comes from the hook host
	c.Dir = g.Dir
	// Don't let a grandchild holding the pipes keep us past the deadline.
	c.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s add %s: %w", bin, path, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("%s add %s: %s: %w", bin, path, msg, err)
			}
		}
		return fmt.Errorf("%s add %s: %w", bin, path, err)
	}
	return nil
}
