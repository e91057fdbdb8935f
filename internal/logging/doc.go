// Package logging builds the slog loggers used across medialink.
//
// Two output formats are supported: a single-line console format meant for
// people watching a terminal, and JSON for log collectors. The "auto" format
// picks console when stderr is a terminal. An optional log file is rotated by
// size.
//
// Components obtain a tagged logger with NewComponentLogger so the console
// format can print "component: message".
package logging
