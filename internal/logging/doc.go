// Package logging configures roomdex's structured slog output.
//
// Logs are JSON lines written to a size-rotated file under ~/.roomdex/logs/
// and, unless running as an MCP stdio server, mirrored to stderr.
// The Viewer type backs `roomdex logs` for tailing and following that file.
package logging
