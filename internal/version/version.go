// Package version exposes the build version reported by the health probe
// and the version subcommand. Overridden at release time via
// -ldflags "-X github.com/Mikeyy1405/Writgoai.nl/internal/version.Version=...".
package version

var Version = "1.0.0"
