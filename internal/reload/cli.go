package reload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CLIRunner shells out to `<binary> -rx "<command>"` on the engine host.
type CLIRunner struct {
	Binary string
}

func NewCLIRunner(binary string) *CLIRunner {
	if strings.TrimSpace(binary) == "" {
		binary = "asterisk"
	}
	return &CLIRunner{Binary: binary}
}

func (r *CLIRunner) Reload(ctx context.Context, target string) Result {
	start := time.Now()
	command, err := Command(target)
	if err != nil {
		return failed(target, "", start, err)
	}

	cmd := exec.CommandContext(ctx, r.Binary, "-rx", command)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err = cmd.Run()
	output := strings.TrimSpace(out.String())

	if ctxErr := ctx.Err(); ctxErr != nil {
		return failed(target, command, start, fmt.Errorf("%s: %w", command, ctxErr))
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail := fmt.Sprintf("exit %d", exitErr.ExitCode())
			if output != "" {
				detail += ": " + output
			}
			return Result{Target: target, Command: command, OK: false, Detail: detail, Duration: time.Since(start)}
		}
		return failed(target, command, start, err)
	}
	return Result{
		Target:   target,
		Command:  command,
		OK:       !outputFailed(output),
		Detail:   output,
		Duration: time.Since(start),
	}
}
