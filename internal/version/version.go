// Package version holds the daemon version reported to the backend and on
// health endpoints. Overridable at build time with -ldflags.
package version

var Version = "0.4.0"
