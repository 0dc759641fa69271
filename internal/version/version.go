// Package version exposes build-time version metadata.
package version

// Version is overridden at build time via
// -ldflags "-X github.com/UOR-Foundation/uordb/internal/version.Version=...".
var Version = "0.1.0-dev"
