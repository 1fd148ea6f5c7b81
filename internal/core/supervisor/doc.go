// Package supervisor launches the monitored service and detects whether its
// image replacement (exec) succeeded.
//
// Go cannot run code in a forked child before exec, so the fork child is an
// exec trampoline: the supervisor re-executes its own binary under a marker
// argv[0] and hands it the write end of a status pipe as fd 3. Init, called
// first thing in main, recognises the marker and performs the exec:
//
//   - exec succeeds: fd 3 is close-on-exec, the parent reads zero bytes
//   - exec fails: the child writes its errno to fd 3 and exits immediately
//
// The parent reads the pipe exactly once and classifies the outcome as
// Launched or Failed. Failed children are reaped before Launch returns and a
// launched service is reaped by a background goroutine when it exits, so no
// zombie is left on any path. A service that exits is never relaunched.
package supervisor
