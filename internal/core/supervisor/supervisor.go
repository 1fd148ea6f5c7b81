package supervisor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/yndnr/admin-sidecar/internal/core/domain"
)

// ErrAlreadyLaunched is returned when Launch is called a second time.
var ErrAlreadyLaunched = errors.New("supervisor: service already launched")

// LaunchError describes a failed launch. It matches domain.ErrLaunchFailed
// with errors.Is.
type LaunchError struct {
	Path string
	// PID of the trampoline child, 0 if no child was spawned.
	PID int
	// Errno reported by the child when exec failed, 0 otherwise.
	Errno unix.Errno
	// N is the number of status bytes read, -1 if the read itself failed.
	N   int
	Err error
}

func (e *LaunchError) Error() string {
	msg := "launch " + e.Path
	if e.PID > 0 {
		msg += fmt.Sprintf(" (pid %d)", e.PID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the domain sentinel and the underlying cause.
func (e *LaunchError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrLaunchFailed}
	}
	return []error{domain.ErrLaunchFailed, e.Err}
}

// Config holds the supervisor configuration.
type Config struct {
	// Executable is the binary re-executed as trampoline (default: os.Executable).
	Executable string
	// Env is the environment of the service (default: os.Environ).
	Env []string
	// Stdin, Stdout and Stderr are inherited by the service (default: the sidecar's own).
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Logger receives lifecycle events (default: slog.Default).
	Logger *slog.Logger
	// Now is the clock used for LaunchedAt (default: time.Now).
	Now func() time.Time
}

// Supervisor launches a single monitored service and reaps it when it exits.
type Supervisor struct {
	cfg      Config
	logger   *slog.Logger
	launched atomic.Bool

	done     chan struct{}
	exitCode atomic.Int64
}

// New creates a supervisor.
func New(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Env == nil {
		cfg.Env = os.Environ()
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Supervisor{
		cfg:    cfg,
		logger: cfg.Logger,
		done:   make(chan struct{}),
	}
	s.exitCode.Store(-1)
	return s
}

// Launch starts the service at path with argv (argv[0] included) and reports
// whether its image replacement succeeded.
//
// On success the returned SupervisedProcess carries the service PID. On
// failure the child has already been reaped and the error is a *LaunchError.
// Launch may only succeed once per Supervisor.
func (s *Supervisor) Launch(path string, argv []string) (*domain.SupervisedProcess, error) {
	if !s.launched.CompareAndSwap(false, true) {
		return nil, ErrAlreadyLaunched
	}

	self := s.cfg.Executable
	if self == "" {
		exe, err := os.Executable()
		if err != nil {
			s.launched.Store(false)
			return nil, &LaunchError{Path: path, N: -1, Err: fmt.Errorf("resolve own executable: %w", err)}
		}
		self = exe
	}

	if len(argv) == 0 {
		argv = []string{path}
	}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		s.launched.Store(false)
		return nil, &LaunchError{Path: path, N: -1, Err: fmt.Errorf("create status pipe: %w", err)}
	}
	rfd := fds[0]
	wf := os.NewFile(uintptr(fds[1]), "supervisor-status")

	cmd := &exec.Cmd{
		Path:       self,
		Args:       append([]string{trampolineName, path}, argv...),
		Env:        s.cfg.Env,
		Stdin:      s.cfg.Stdin,
		Stdout:     s.cfg.Stdout,
		Stderr:     s.cfg.Stderr,
		ExtraFiles: []*os.File{wf},
	}

	if err := cmd.Start(); err != nil {
		_ = wf.Close()
		_ = unix.Close(rfd)
		s.launched.Store(false)
		return nil, &LaunchError{Path: path, N: -1, Err: fmt.Errorf("spawn: %w", err)}
	}
	pid := cmd.Process.Pid

	// The child holds the only remaining write end from here on.
	_ = wf.Close()

	n, rec, err := readStatus(rfd)
	_ = unix.Close(rfd)

	switch {
	case err != nil:
		s.reapFailed(cmd)
		s.launched.Store(false)
		return nil, &LaunchError{Path: path, PID: pid, N: -1, Err: fmt.Errorf("read status pipe: %w", err)}

	case n == 0:
		proc := &domain.SupervisedProcess{
			PID:        pid,
			Path:       path,
			LaunchedAt: s.cfg.Now(),
		}
		s.logger.Info("monitored service started", "pid", pid, "path", path)
		go s.reap(cmd)
		return proc, nil

	case n == errnoSize:
		errno := unix.Errno(binary.NativeEndian.Uint32(rec[:]))
		s.reapFailed(cmd)
		s.launched.Store(false)
		s.logger.Error("monitored service exec failed",
			"path", path,
			"pid", pid,
			"errno", int(errno),
			"error", errno.Error())
		return nil, &LaunchError{Path: path, PID: pid, Errno: errno, N: n, Err: errno}

	default:
		s.reapFailed(cmd)
		s.launched.Store(false)
		s.logger.Error("unexpected status from trampoline", "path", path, "pid", pid, "bytes", n)
		return nil, &LaunchError{Path: path, PID: pid, N: n, Err: fmt.Errorf("unexpected %d-byte status record", n)}
	}
}

// Done is closed once the launched service has exited and been reaped.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// ExitCode returns the service exit code, or -1 while it is still running
// or when it was killed by a signal.
func (s *Supervisor) ExitCode() int {
	return int(s.exitCode.Load())
}

// readStatus performs the single bounded read of the status pipe.
func readStatus(fd int) (int, [errnoSize]byte, error) {
	var rec [errnoSize]byte
	for {
		n, err := unix.Read(fd, rec[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, rec, err
		}
		return n, rec, nil
	}
}

// reapFailed collects a trampoline that did not become the service.
func (s *Supervisor) reapFailed(cmd *exec.Cmd) {
	if err := cmd.Wait(); err != nil {
		s.logger.Debug("reaped failed trampoline", "pid", cmd.Process.Pid, "status", err)
	}
}

// reap waits for the running service and records its exit. The service is
// not restarted.
func (s *Supervisor) reap(cmd *exec.Cmd) {
	defer close(s.done)

	err := cmd.Wait()
	if cmd.ProcessState != nil {
		s.exitCode.Store(int64(cmd.ProcessState.ExitCode()))
	}

	if err != nil {
		s.logger.Warn("monitored service exited", "pid", cmd.Process.Pid, "status", err)
		return
	}
	s.logger.Info("monitored service exited", "pid", cmd.Process.Pid, "status", "exit status 0")
}
