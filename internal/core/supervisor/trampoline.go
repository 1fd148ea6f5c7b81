package supervisor

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

const (
	// trampolineName is the argv[0] marking a trampoline child.
	trampolineName = "admin-sidecar-exec"

	// statusFD is the descriptor number of the status pipe in the child
	// (first entry of exec.Cmd.ExtraFiles).
	statusFD = 3

	// errnoSize is the size of the errno record written on exec failure.
	errnoSize = 4

	// trampolineExitCode is the exit status of a child whose exec failed.
	trampolineExitCode = 127
)

// Init runs the exec trampoline if the current process was spawned by
// Launch. In that case it never returns. Otherwise it returns false and the
// caller continues with normal startup.
//
// Init must be called before any other initialisation in main, and from
// TestMain in packages whose tests call Launch.
func Init() bool {
	if len(os.Args) < 2 || os.Args[0] != trampolineName {
		return false
	}
	execService(os.Args[1], os.Args[2:])
	return true
}

// execService replaces the current image with path. It only returns control
// to the kernel: on failure the errno is reported through statusFD and the
// process exits without running deferred functions or flushing buffers.
func execService(path string, argv []string) {
	unix.CloseOnExec(statusFD)

	if len(argv) == 0 {
		argv = []string{path}
	}

	bin, err := exec.LookPath(path)
	if errors.Is(err, exec.ErrDot) {
		err = nil
	}
	if err == nil {
		err = unix.Exec(bin, argv, os.Environ())
	}

	var rec [errnoSize]byte
	binary.NativeEndian.PutUint32(rec[:], uint32(errnoOf(err)))
	_, _ = unix.Write(statusFD, rec[:])
	_ = unix.Close(statusFD)
	unix.Exit(trampolineExitCode)
}

// errnoOf maps a lookup or exec error to the errno reported to the parent.
func errnoOf(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return unix.ENOENT
	}
	if errors.Is(err, fs.ErrPermission) {
		return unix.EACCES
	}
	return unix.EINVAL
}
