// Package logging configures slog for metasearch.
//
// Interactive commands log text to stderr. With --debug, or when serving MCP
// over stdio, JSON logs go to a size-rotated file under ~/.metasearch/logs/
// and can be inspected with `metasearch logs`.
package logging
