package tunnel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// terminateGrace is how long the process group gets between SIGTERM and SIGKILL.
const terminateGrace = 2 * time.Second

// Launcher starts tunnel processes. onLine receives every stdout and stderr
// line; it may be called concurrently.
type Launcher interface {
	Launch(binary string, args []string, onLine func(string)) (Process, error)
}

// Process is a launched tunnel process.
type Process interface {
	Handle
	// Err returns the exit error once Done is closed.
	Err() error
}

type processLauncher struct{}

func (processLauncher) Launch(binary string, args []string, onLine func(string)) (Process, error) {
	cmd := exec.Command(binary, args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	p := &groupProcess{pid: cmd.Process.Pid, done: make(chan struct{})}

	var wg sync.WaitGroup
	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onLine != nil {
				onLine(scanner.Text())
			}
		}
	}
	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	go func() {
		wg.Wait()
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// groupProcess is a process leading its own process group.
type groupProcess struct {
	pid  int
	done chan struct{}
	err  error

	once    sync.Once
	termErr error
}

func (p *groupProcess) Done() <-chan struct{} { return p.done }

func (p *groupProcess) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Terminate signals the whole group with SIGTERM, then SIGKILL after a grace
// period. Children spawned by the tool go down with it.
func (p *groupProcess) Terminate() error {
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		if err := unix.Kill(-p.pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			p.termErr = fmt.Errorf("signal tunnel group: %w", err)
		}
		select {
		case <-p.done:
			return
		case <-time.After(terminateGrace):
		}
		if err := unix.Kill(-p.pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			p.termErr = errors.Join(p.termErr, fmt.Errorf("kill tunnel group: %w", err))
		}
		<-p.done
	})
	return p.termErr
}
