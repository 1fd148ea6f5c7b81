// Package buildinfo exposes build information for admin-sidecar.
//
// Version, Commit and BuildTime are injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/admin-sidecar/internal/infra/buildinfo.Version=v1.0.0"
//
// When Commit is not injected it falls back to the VCS revision recorded by
// the Go toolchain, and GoVersion always reports the compiler version.
package buildinfo
