package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestConsolePaintRespectsNoColor(t *testing.T) {
	defer func(v bool) { noColor = v }(noColor)
	c := console{w: &bytes.Buffer{}}

	noColor = false
	if got := c.paint(ansiGreen, "ok"); got != ansiGreen+"ok"+ansiReset {
		t.Errorf("painted = %q", got)
	}

	noColor = true
	if got := c.paint(ansiGreen, "ok"); got != "ok" {
		t.Errorf("paint with --no-color = %q, want bare text", got)
	}
}

func TestConsoleMessages(t *testing.T) {
	defer func(v bool) { noColor = v }(noColor)
	noColor = true

	var buf bytes.Buffer
	c := console{w: &buf}

	c.successf("stored %d rows", 3)
	c.warnf("%d rows skipped", 1)
	c.errorf("ingest failed: %v", "disk full")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	for i, prefix := range []string{"✓ ", "⚠ ", "✗ "} {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], prefix)
		}
	}
	if !strings.Contains(lines[0], "stored 3 rows") {
		t.Errorf("success line = %q", lines[0])
	}
}

func TestConsoleStatusAlignment(t *testing.T) {
	defer func(v bool) { noColor = v }(noColor)
	noColor = true

	var buf bytes.Buffer
	c := console{w: &buf}

	c.statusf("Server", "running on port %d", 8000)
	c.statusf("Driver", "%s", "sqlite")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	// Values start in the same column regardless of label length.
	first := strings.Index(lines[0], "running")
	second := strings.Index(lines[1], "sqlite")
	if first == -1 || first != second {
		t.Errorf("values misaligned: %q vs %q", lines[0], lines[1])
	}
	if !strings.Contains(lines[0], "Server:") {
		t.Errorf("status line = %q, want labeled", lines[0])
	}
}
