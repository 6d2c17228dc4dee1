// Package reload tells the telephony engine to pick up rewritten
// configuration. Every call is bounded by the context deadline; a timeout is
// reported as a failed reload.
package reload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Result is the outcome of one reload target.
type Result struct {
	Target   string        `json:"target"`
	Command  string        `json:"command"`
	OK       bool          `json:"ok"`
	Detail   string        `json:"detail"`
	Duration time.Duration `json:"duration"`
}

type Reloader interface {
	Reload(ctx context.Context, target string) Result
}

const (
	TargetDialplan  = "dialplan"
	TargetPJSIP     = "pjsip"
	TargetVoicemail = "voicemail"
)

var ErrUnknownTarget = errors.New("unknown_reload_target")

var commands = map[string]string{
	TargetDialplan:  "dialplan reload",
	TargetPJSIP:     "module reload res_pjsip.so",
	TargetVoicemail: "module reload app_voicemail.so",
}

// Command maps a reload target to the engine CLI command.
func Command(target string) (string, error) {
	cmd, ok := commands[strings.ToLower(strings.TrimSpace(target))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	return cmd, nil
}

// failureMarkers are phrases the engine prints when a command was accepted
// but the reload itself did not happen.
var failureMarkers = []string{
	"unable to",
	"no such command",
	"not properly initialized",
	"failed",
}

func outputFailed(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range failureMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func failed(target, command string, start time.Time, err error) Result {
	return Result{
		Target:   target,
		Command:  command,
		OK:       false,
		Detail:   err.Error(),
		Duration: time.Since(start),
	}
}

// Noop accepts every reload. Used in development without an engine.
type Noop struct{}

func (Noop) Reload(_ context.Context, target string) Result {
	command, err := Command(target)
	if err != nil {
		return failed(target, "", time.Now(), err)
	}
	return Result{Target: target, Command: command, OK: true, Detail: "noop"}
}
