package audio

import (
	"fmt"
	"os/exec"
	"strconv"
)

// ExecSetter applies sample rates by running an external command with the
// rate in Hz appended as the last argument.
type ExecSetter struct {
	command string
	args    []string
}

// NewExecSetter creates a setter for the given command line.
func NewExecSetter(command string, args ...string) *ExecSetter {
	return &ExecSetter{
		command: command,
		args:    args,
	}
}

// SetSampleRate runs the command with the rate appended.
func (e *ExecSetter) SetSampleRate(hz int) error {
	args := append(append([]string(nil), e.args...), strconv.Itoa(hz))
	out, err := exec.Command(e.command, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("run %s: %w (%s)", e.command, err, out)
	}
	return nil
}
