package engine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

const terminateGrace = 5 * time.Second

// process is one running incarnation of an engine command.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	reader *bufio.Reader

	done    chan struct{}
	exitErr error

	// served is set once an exchange has completed. Guarded by the
	// owning Client's mutex.
	served bool
}

func startProcess(command string, stderr io.Writer) (*process, error) {
	cmd := shellCommand(command)
	configureCommand(cmd)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	// Stdout is a pipe we own so that Wait never closes it under a reader
	// that is still draining output written just before the process exited.
	r, w, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdout = w

	if err := cmd.Start(); err != nil {
		stdin.Close()
		r.Close()
		w.Close()
		return nil, err
	}
	w.Close()

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: r,
		reader: bufio.NewReader(r),
		done:   make(chan struct{}),
	}
	go p.waitInBackground()

	return p, nil
}

func (p *process) waitInBackground() {
	p.exitErr = p.cmd.Wait()
	close(p.done)
}

func (p *process) pid() int {
	return p.cmd.Process.Pid
}

// waitExit returns the exit error if the process ends within d, and nil if it
// exits cleanly or is still running.
func (p *process) waitExit(d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.done:
		return p.exitErr
	case <-timer.C:
		return nil
	}
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// terminate asks the process group to exit, escalating to SIGKILL after a
// grace period, and releases the pipes.
func (p *process) terminate() {
	if !p.exited() {
		_ = terminateGroup(p.cmd)
		select {
		case <-p.done:
		case <-time.After(terminateGrace):
			_ = killGroup(p.cmd)
			<-p.done
		}
	}
	p.release()
}

func (p *process) release() {
	_ = p.stdin.Close()
	_ = p.stdout.Close()
}
