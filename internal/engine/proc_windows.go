//go:build windows
// +build windows

package engine

import (
	"os/exec"
)

func configureCommand(cmd *exec.Cmd) {}

func lowerPriority(pid, nice int) error {
	return nil
}

func terminateGroup(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func killGroup(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func shellCommand(command string) *exec.Cmd {
	return exec.Command("cmd", "/C", command)
}
