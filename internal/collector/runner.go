package collector

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/pkg/errors"
)

// defaultWaitDelay bounds how long Wait keeps draining stdout/stderr after
// the child was killed, in case grandchildren still hold the pipes.
const defaultWaitDelay = 2 * time.Second

// Output is everything an external command wrote.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes an external command to completion.
type Runner interface {
	// Run starts bin with args, captures its output fully and blocks until
	// it exits or ctx ends. On return the process has been reaped.
	Run(ctx context.Context, bin string, args ...string) (Output, error)
}

// ExecRunner runs commands with os/exec. The child gets its own process
// group and the whole group is killed when ctx ends.
type ExecRunner struct {
	// WaitDelay overrides defaultWaitDelay when positive.
	WaitDelay time.Duration
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, bin string, args ...string) (Output, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = defaultWaitDelay
	if r.WaitDelay > 0 {
		cmd.WaitDelay = r.WaitDelay
	}
	killProcessGroupOnCancel(cmd)

	// Run waits for the child on every path, including kill on ctx expiry.
	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, errors.Wrapf(ctxErr, "%s did not finish", bin)
	}
	if err != nil {
		return out, errors.Wrapf(err, "running %s", bin)
	}
	return out, nil
}

// IsTimeout reports whether err came from a deadline expiring.
func IsTimeout(err error) bool {
	return errors.Cause(err) == context.DeadlineExceeded
}
