// Package output formats what the medialink CLI prints: plain messages,
// verbose detail, an in-place progress line for the initial scan and
// tables.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

// Config holds output configuration.
type Config struct {
	Verbose   bool
	Writer    io.Writer // default os.Stdout
	ErrWriter io.Writer // default os.Stderr
	IsTTY     bool
}

// Output writes CLI messages. The progress line is only drawn on a terminal
// and never in verbose mode, where log lines would tear it.
type Output struct {
	config Config

	mu              sync.Mutex
	progressActive  bool
	progressTotal   int
	progressCurrent int
	progressWidth   int
}

// New creates an Output.
func New(config Config) *Output {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.ErrWriter == nil {
		config.ErrWriter = os.Stderr
	}
	return &Output{config: config}
}

// DefaultConfig detects whether stdout is a terminal.
func DefaultConfig(verbose bool) Config {
	return Config{
		Verbose:   verbose,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		IsTTY:     term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// IsVerbose reports whether verbose mode is enabled.
func (o *Output) IsVerbose() bool { return o.config.Verbose }

// Verbose prints only in verbose mode.
func (o *Output) Verbose(format string, args ...any) {
	if !o.config.Verbose {
		return
	}
	o.print(o.config.Writer, format, args...)
}

// Info prints a message.
func (o *Output) Info(format string, args ...any) {
	o.print(o.config.Writer, format, args...)
}

// Error prints a message to the error writer.
func (o *Output) Error(format string, args ...any) {
	o.print(o.config.ErrWriter, format, args...)
}

func (o *Output) print(w io.Writer, format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clearLocked()
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	fmt.Fprint(w, msg)
	o.redrawLocked()
}

func (o *Output) showProgress() bool {
	return o.config.IsTTY && !o.config.Verbose
}

// StartProgress begins a progress line over total steps.
func (o *Output) StartProgress(total int) {
	if !o.showProgress() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progressActive = true
	o.progressTotal = total
	o.progressCurrent = 0
}

// UpdateProgress redraws the progress line at step current.
func (o *Output) UpdateProgress(current int, message string) {
	if !o.showProgress() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.progressActive {
		return
	}
	o.progressCurrent = current
	o.clearLocked()
	line := fmt.Sprintf("Scanning %d/%d", current, o.progressTotal)
	if message != "" {
		line += " " + message
	}
	if len(line) > 78 {
		line = line[:75] + "..."
	}
	fmt.Fprint(o.config.Writer, "\r"+line)
	o.progressWidth = len(line)
}

// EndProgress removes the progress line.
func (o *Output) EndProgress() {
	if !o.showProgress() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clearLocked()
	o.progressActive = false
}

func (o *Output) clearLocked() {
	if o.progressWidth == 0 {
		return
	}
	fmt.Fprint(o.config.Writer, "\r"+strings.Repeat(" ", o.progressWidth)+"\r")
	o.progressWidth = 0
}

func (o *Output) redrawLocked() {
	if !o.progressActive || o.progressCurrent == 0 {
		return
	}
	line := fmt.Sprintf("Scanning %d/%d", o.progressCurrent, o.progressTotal)
	fmt.Fprint(o.config.Writer, "\r"+line)
	o.progressWidth = len(line)
}

// Align selects a column alignment for Table.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Table renders rows under headers in a rounded box. Short rows are padded.
func Table(headers []string, rows [][]string, aligns []Align) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == AlignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}
