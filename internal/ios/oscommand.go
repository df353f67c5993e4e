package ios

import (
	"os/exec"
	"strings"
)

const (
	// maxCommand bounds the command line handed to the wrapper.
	maxCommand = 1023
	// maxArgs counts the wrapper name itself.
	maxArgs = 128
)

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// commandArgs splits line into the wrapper's argument vector.
func commandArgs(wrapper, line string) []string {
	if len(line) > maxCommand {
		line = line[:maxCommand]
	}
	args := []string{wrapper}
	for _, field := range strings.FieldsFunc(line, isASCIISpace) {
		if len(args) == maxArgs {
			break
		}
		args = append(args, field)
	}
	return args
}

// osCommand starts the wrapper with stdout and stderr discarded. Only one
// command may be outstanding; its exit is observed on the loop.
func (m *Machine) osCommand(line string) {
	m.logger.Debug().Str("command", line).Msg("os command")
	if m.child != nil {
		m.logger.Warn().Msg("attempt to run two commands")
		m.respond('0')
		return
	}

	args := commandArgs(m.wrapper, line)
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		m.logger.Warn().Err(err).Msg("can't spawn a child")
		m.respond('0')
		return
	}
	m.child = cmd
	m.logger.Debug().Int("pid", cmd.Process.Pid).Msg("process spawned")
	go func() {
		err := cmd.Wait()
		m.loop.Post(func() { m.commandExited(cmd, err) })
	}()
	m.respond('1')
}

func (m *Machine) commandExited(cmd *exec.Cmd, err error) {
	if m.child != cmd {
		return
	}
	m.child = nil
	result := "OK"
	if err != nil || !cmd.ProcessState.Success() {
		result = "FAIL"
	}
	m.logger.Debug().Int("pid", cmd.Process.Pid).Str("result", result).Msg("child exited")
}
