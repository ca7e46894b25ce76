// Package sink implements component C8: an atomic output sink for the CLI
// tools. Writes land in a temporary sibling file; Commit renames it over the
// destination, Abort removes it. "-" is treated as a stdout passthrough with
// no temp file and no rename.
//
// Grounded on original_source/src/proxy_file.rs's ProxyFile (same temp-name
// scheme: "<path>.tmp.<unix_seconds>", same write-then-rename-or-remove
// behavior), adapted from Rust's Drop-based implicit cleanup to an explicit
// Commit/Abort pair, matching the teacher's writeFileAtomic
// (internal/diskimage/atomic.go) which also favors an explicit, checked
// rename step over a finalizer.
package sink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"
)

// Sink is a buffered, atomic output destination. The zero value is not
// usable; construct with New.
type Sink struct {
	path     string
	tempPath string
	file     *os.File
	w        *bufio.Writer
	isStdout bool
	done     bool
}

// New opens a sink for path. If path is "-", writes are buffered to stdout:
// Commit only flushes them and Abort does nothing beyond marking the sink
// done. Otherwise a temp file named "<path>.tmp.<unix_seconds>" is created
// alongside path.
func New(path string) (*Sink, error) {
	if path == "-" {
		return &Sink{
			path:     "-",
			tempPath: "-",
			isStdout: true,
			w:        bufio.NewWriterSize(os.Stdout, 64*1024),
		}, nil
	}

	tempPath := fmt.Sprintf("%s.tmp.%d", path, time.Now().Unix())
	f, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("sink: create temp file %q: %w", tempPath, err)
	}
	return &Sink{
		path:     path,
		tempPath: tempPath,
		file:     f,
		w:        bufio.NewWriterSize(f, 64*1024),
	}, nil
}

// Write implements io.Writer.
func (s *Sink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

var _ io.Writer = (*Sink)(nil)

// Commit flushes any buffered data and, for a file-backed sink, renames the
// temp file over the destination path. Call exactly one of Commit or Abort
// before discarding the Sink.
func (s *Sink) Commit() error {
	if s.done {
		return fmt.Errorf("sink: already finalized")
	}
	s.done = true

	if s.isStdout {
		return s.w.Flush()
	}

	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("sink: flush temp file: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sink: sync temp file: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("sink: close temp file: %w", err)
	}
	if err := os.Rename(s.tempPath, s.path); err != nil {
		return fmt.Errorf("sink: rename temp file to %q: %w", s.path, err)
	}
	return nil
}

// Abort discards the temp file without touching the destination path. Safe
// to call on a stdout sink (it is then just a no-op beyond marking done).
func (s *Sink) Abort() error {
	if s.done {
		return nil
	}
	s.done = true

	if s.isStdout {
		return nil
	}

	_ = s.file.Close()
	if err := os.Remove(s.tempPath); err != nil {
		return fmt.Errorf("sink: remove temp file %q: %w", s.tempPath, err)
	}
	return nil
}
