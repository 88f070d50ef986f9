// Package contracts holds small cross-cutting constants shared between
// the gateway binary and its internal packages.
package contracts

import "fmt"

const (
	// Version is the current version of the gateway.
	Version = "0.1.0"

	// ProtocolVersion identifies the WebSocket/SSE frame shape, in case
	// it ever needs to change in a backward-incompatible way.
	ProtocolVersion = "v1"
)

var (
	// BuildTime is set during build using ldflags.
	BuildTime = "unknown"

	// GitCommit is set during build using ldflags.
	GitCommit = "unknown"
)

// VersionString returns a human-readable version line.
func VersionString() string {
	return fmt.Sprintf("gateway v%s (%s, built %s)", Version, GitCommit, BuildTime)
}
