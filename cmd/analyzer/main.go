// Command analyzer prints an indented structural listing of a PSD/PSB
// file's regions: label, byte offset, end offset, and optionally size and
// content hash.
//
// Grounded on original_source/src/bin_analyzer.rs, with the CLI shape
// (flag.Bool/flag.Parse, positional file argument, stderr+exit(1) on
// error) following the teacher's cmd/w64tool/main.go.
package main

import (
	"bufio"
	"crypto/sha256"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"psdstruct/internal/psdformat"
	"psdstruct/internal/version"
)

const maxHashableSize = 1024 * 1024 * 100

func main() {
	fullpath := flag.Bool("fullpath", false, "print the full region label instead of just its last path segment")
	flat := flag.Bool("flat", false, "disable indentation by nesting depth")
	withSize := flag.Bool("with-size", false, "append region size in parentheses")
	withHash := flag.Bool("with-hash", false, "prepend the region's sha256 hex digest")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: analyzer [--fullpath] [--flat] [--with-size] [--with-hash] file.psd")
		os.Exit(1)
	}

	if err := run(args[0], *fullpath, *flat, *withSize, *withHash); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string, fullpath, flat, withSize, withHash bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error reading input psd: %w", err)
	}
	defer f.Close()

	result, err := psdformat.Parse(f)
	if err != nil {
		return fmt.Errorf("cannot get indexes: %w", err)
	}

	out := bufio.NewWriterSize(os.Stdout, 64*1024)
	for _, label := range result.Indexes.Labels() {
		r, _ := result.Indexes.Get(label)

		indent := 0
		if !flat {
			indent = strings.Count(label, "/") + strings.Count(label, ":")
		}

		display := label
		if !fullpath {
			display = lastSegment(label)
		}

		endStr := fmt.Sprintf("%d", r.End())
		if withSize {
			endStr = fmt.Sprintf("%s (%d)", endStr, r.Size)
		}

		line := fmt.Sprintf("%s%s : %d %s", strings.Repeat("  ", indent), display, r.Offset, endStr)

		if withHash {
			prefix, err := hashPrefix(f, r.Offset, r.Size)
			if err != nil {
				return err
			}
			line = fmt.Sprintf("%s   %s", prefix, line)
		}

		if _, err := fmt.Fprintln(out, line); err != nil {
			return fmt.Errorf("error while writing: %w", err)
		}
	}

	if err := out.Flush(); err != nil {
		return fmt.Errorf("error while flushing final data: %w", err)
	}
	return nil
}

// lastSegment returns the substring after the last '/' or ':' in label, or
// label itself if neither appears.
func lastSegment(label string) string {
	idx := -1
	if i := strings.LastIndex(label, "/"); i > idx {
		idx = i
	}
	if i := strings.LastIndex(label, ":"); i > idx {
		idx = i
	}
	if idx < 0 {
		return label
	}
	return label[idx+1:]
}

func hashPrefix(f *os.File, offset, size uint64) (string, error) {
	switch {
	case size == 0:
		return strings.Repeat(".", 64), nil
	case size > maxHashableSize:
		return strings.Repeat("-", 64), nil
	}

	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		return "", fmt.Errorf("error while reading file: %w", err)
	}
	h := sha256.New()
	if _, err := io.CopyN(h, f, int64(size)); err != nil {
		return "", fmt.Errorf("error while reading file: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
