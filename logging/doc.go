// Package logging defines the minimal Logger interface used across
// dialogmesh plus slog-backed and no-op implementations.
package logging
