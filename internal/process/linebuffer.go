// Package process manages agent subprocess execution: spawning, output
// streaming, stderr capture, timeouts, and forced termination.
package process

import (
	"bytes"
	"strings"
)

// LineBuffer accumulates arbitrary byte chunks and yields complete
// newline-terminated lines. A trailing partial line is retained across
// chunks until the next newline or a final Flush.
//
// Agent CLIs write line-oriented JSON but the pipe delivers arbitrary
// chunk boundaries, so lines routinely arrive split across reads.
type LineBuffer struct {
	partial bytes.Buffer
}

// Write appends a chunk and returns all complete lines accumulated so far.
// Returned lines have their trailing newline (and carriage return) stripped.
// An empty chunk returns no lines.
func (b *LineBuffer) Write(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	b.partial.Write(chunk)

	data := b.partial.Bytes()
	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		return nil
	}

	// Materialize the completed lines before touching the buffer: Reset
	// keeps the backing array, so writing the remainder back would
	// clobber bytes a plain sub-slice still points at.
	complete := string(data[:last])
	rest := append([]byte(nil), data[last+1:]...)
	b.partial.Reset()
	b.partial.Write(rest)

	lines := strings.Split(complete, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// WriteString is a convenience wrapper around Write.
func (b *LineBuffer) WriteString(chunk string) []string {
	return b.Write([]byte(chunk))
}

// Flush returns the buffered trailing fragment, if any, and resets the
// buffer. Called at stream end so a final line without a newline is not
// lost.
func (b *LineBuffer) Flush() (string, bool) {
	if b.partial.Len() == 0 {
		return "", false
	}
	line := strings.TrimSuffix(b.partial.String(), "\r")
	b.partial.Reset()
	return line, true
}

// Pending returns the number of buffered bytes not yet returned as a line.
func (b *LineBuffer) Pending() int {
	return b.partial.Len()
}
