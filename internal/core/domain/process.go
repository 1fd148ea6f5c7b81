package domain

import "time"

// SupervisedProcess describes the monitored service launched at startup.
//
// It is created exactly once by the supervisor after the service image was
// successfully exec'd and is never modified afterwards. A crashed service is
// not relaunched, so PID may refer to a process that no longer exists.
type SupervisedProcess struct {
	PID        int
	Path       string
	LaunchedAt time.Time
}

// Valid reports whether the process was launched.
func (p SupervisedProcess) Valid() bool {
	return p.PID > 0
}

// ServerClock records when the sidecar started.
type ServerClock struct {
	StartedAt time.Time
}

// Uptime returns the whole seconds elapsed between StartedAt and now.
// It never returns a negative value.
func (c ServerClock) Uptime(now time.Time) int64 {
	d := now.Sub(c.StartedAt)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// Runtime is the process-wide state shared by every connection handler.
//
// A Runtime is built once, before the acceptor starts, and passed by value.
// Handlers only read it, so no synchronization is required.
type Runtime struct {
	Process SupervisedProcess
	Clock   ServerClock
}

// NewRuntime bundles the supervised process and server clock.
func NewRuntime(proc SupervisedProcess, clock ServerClock) Runtime {
	return Runtime{Process: proc, Clock: clock}
}
