package main

import (
	"fmt"
	"io"
	"os"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBold   = "\033[1m"
)

// statusLabelWidth pads status labels so their values line up in a column.
const statusLabelWidth = 16

// console renders human-facing command output. Everything goes to w so that
// stdout stays reserved for machine-readable output.
type console struct {
	w io.Writer
}

var term = console{w: os.Stderr}

func (c console) paint(code, s string) string {
	if noColor {
		return s
	}
	return code + s + ansiReset
}

func (c console) successf(format string, args ...any) {
	fmt.Fprintln(c.w, c.paint(ansiGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func (c console) errorf(format string, args ...any) {
	fmt.Fprintln(c.w, c.paint(ansiRed, "✗ "+fmt.Sprintf(format, args...)))
}

func (c console) warnf(format string, args ...any) {
	fmt.Fprintln(c.w, c.paint(ansiYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

// statusf prints one aligned "Label: value" line of the status report.
// Padding happens before painting: ANSI escapes would break %-*s widths.
func (c console) statusf(label, format string, args ...any) {
	padded := fmt.Sprintf("%-*s", statusLabelWidth, label+":")
	fmt.Fprintf(c.w, "  %s %s\n", c.paint(ansiBold, padded), fmt.Sprintf(format, args...))
}
