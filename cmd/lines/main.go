// Command lines prints the hashed region lines of one or more PSD/PSB files
// side by side, one column per file, for quick visual comparison.
//
// Grounded on original_source/src/bin_lines.rs: each file contributes a
// fixed-width column (pad_right to 100 characters normally, 70 when
// --truncate is given), a column shows "<hash> <label> : <start> <size>",
// with the label shortened to "{first10}...{last17}" when it is longer
// than 30 characters and --truncate is set, and the hash always truncated
// to its first 16 hex characters.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"psdstruct/internal/hashiter"
	"psdstruct/internal/psdformat"
	"psdstruct/internal/version"
	"psdstruct/internal/workerpool"
)

func main() {
	truncate := flag.Bool("truncate", false, "shorten long labels and use narrower columns")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}

	paths := flag.Args()
	if len(paths) < 1 {
		fmt.Fprintln(os.Stderr, "usage: lines [--truncate] file...")
		os.Exit(1)
	}

	if err := run(paths, *truncate); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const (
	paddingWide = 100
	paddingNarrow = 70
)

func run(paths []string, truncate bool) error {
	padding := paddingWide
	if truncate {
		padding = paddingNarrow
	}

	columns, err := workerpool.Map(paths, func(p string) ([]string, error) {
		return columnFor(p, truncate)
	})
	if err != nil {
		return err
	}

	maxRows := 0
	for _, rows := range columns {
		if len(rows) > maxRows {
			maxRows = len(rows)
		}
	}

	out := bufio.NewWriterSize(os.Stdout, 64*1024)

	header := make([]string, len(paths))
	for i, p := range paths {
		header[i] = padRight(p, padding)
	}
	fmt.Fprintln(out, strings.Join(header, "|"))

	for row := 0; row < maxRows; row++ {
		cells := make([]string, len(paths))
		for i := range paths {
			cell := ""
			if row < len(columns[i]) {
				cell = columns[i][row]
			}
			cells[i] = padRight(cell, padding)
		}
		fmt.Fprintln(out, strings.Join(cells, "|"))
	}

	return out.Flush()
}

func columnFor(path string, truncate bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %q: %w", path, err)
	}
	defer f.Close()

	result, err := psdformat.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("cannot get indexes for %q: %w", path, err)
	}
	hashed, err := hashiter.HashedLines(f, result.Indexes)
	if err != nil {
		return nil, fmt.Errorf("cannot hash lines of %q: %w", path, err)
	}

	rows := make([]string, len(hashed))
	for i, l := range hashed {
		label := l.Label
		if truncate && len(label) > 30 {
			label = label[:10] + "..." + label[len(label)-17:]
		}
		hash := l.Hash
		if len(hash) > 16 {
			hash = hash[:16]
		}
		rows[i] = fmt.Sprintf("%s %s : %d %d", hash, label, l.Offset, l.Size)
	}
	return rows, nil
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
