// Package sse frames an SSE-style byte stream into lines and classifies each
// line of an OpenAI-compatible completion stream.
package sse

import (
	"bytes"
	"iter"
)

// Framer turns arbitrary byte chunks into complete lines. A partial line is
// kept across Feed calls until its newline arrives. A Framer is not
// restartable and not safe for concurrent use.
type Framer struct {
	buf []byte
}

// Feed appends a chunk to the pending buffer.
func (f *Framer) Feed(chunk []byte) {
	f.buf = append(f.buf, chunk...)
}

// Lines yields every complete line currently buffered, without its
// terminating "\n" or a trailing "\r". Lines are consumed as they are
// yielded; stopping early leaves the rest buffered.
func (f *Framer) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			i := bytes.IndexByte(f.buf, '\n')
			if i < 0 {
				return
			}
			line := f.buf[:i]
			f.buf = f.buf[i+1:]
			line = bytes.TrimSuffix(line, []byte{'\r'})
			if !yield(string(line)) {
				return
			}
		}
	}
}

// Pending reports how many bytes of an unterminated line are buffered.
func (f *Framer) Pending() int { return len(f.buf) }

// Flush returns the unterminated remainder and empties the buffer.
func (f *Framer) Flush() (string, bool) {
	if len(f.buf) == 0 {
		return "", false
	}
	line := string(bytes.TrimSuffix(f.buf, []byte{'\r'}))
	f.buf = nil
	return line, true
}
