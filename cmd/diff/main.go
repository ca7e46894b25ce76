// Command diff creates, applies, combines, and measures structural PSD/PSB
// patches.
//
// Dispatch shape grounded on original_source/src/bin_diff.rs's create/
// apply/combine subcommands, with "measure" added per spec.md §6 (no Rust
// counterpart exists for it; its output uses internal/cliutil.HumanSize
// unless --in-bytes is given).
package main

import (
	"fmt"
	"io"
	"os"

	"psdstruct/internal/cliutil"
	"psdstruct/internal/diffengine"
	"psdstruct/internal/hashiter"
	"psdstruct/internal/psdformat"
	"psdstruct/internal/sink"
	"psdstruct/internal/version"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  diff create <original.psd> <edited.psd> <output.diff|->
  diff apply <original.psd> <diff1> [diff2...] <output.psd|->
  diff combine <diff1> <diff2> [diff3...] <output.diff|->
  diff measure [--in-bytes] <original.psd> <edited.psd>`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "create":
		err = runCreate(os.Args[2:])
	case "apply":
		err = runApply(os.Args[2:])
	case "combine":
		err = runCombine(os.Args[2:])
	case "measure":
		err = runMeasure(os.Args[2:])
	case "version", "--version", "-version":
		fmt.Println(version.Get().String())
		return
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func hashedLinesOf(path string) (*os.File, []hashiter.Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading %q: %w", path, err)
	}
	result, err := psdformat.Parse(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("cannot get indexes for %q: %w", path, err)
	}
	lines, err := hashiter.HashedLines(f, result.Indexes)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, lines, nil
}

func openAll(paths []string) ([]*os.File, error) {
	files := make([]*os.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			for _, opened := range files {
				opened.Close()
			}
			return nil, fmt.Errorf("error reading %q: %w", p, err)
		}
		files = append(files, f)
	}
	return files, nil
}

func closeAll(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}

func asReaders(files []*os.File) []io.Reader {
	out := make([]io.Reader, len(files))
	for i, f := range files {
		out[i] = f
	}
	return out
}

func runCreate(args []string) error {
	if len(args) != 3 {
		usage()
		os.Exit(1)
	}
	originalPath, editedPath, outputPath := args[0], args[1], args[2]

	origF, origLines, err := hashedLinesOf(originalPath)
	if err != nil {
		return err
	}
	defer origF.Close()

	editF, editLines, err := hashedLinesOf(editedPath)
	if err != nil {
		return err
	}
	defer editF.Close()

	out, err := sink.New(outputPath)
	if err != nil {
		return fmt.Errorf("error opening output: %w", err)
	}
	stop := cliutil.StartTicker(fmt.Sprintf("diffing %s -> %s", originalPath, editedPath))
	err = diffengine.Create(origLines, editLines, editF, out)
	stop()
	if err != nil {
		_ = out.Abort()
		return err
	}
	if err := out.Commit(); err != nil {
		return fmt.Errorf("error while writing: %w", err)
	}
	return nil
}

func runApply(args []string) error {
	if len(args) < 3 {
		usage()
		os.Exit(1)
	}
	originalPath := args[0]
	outputPath := args[len(args)-1]
	diffPaths := args[1 : len(args)-1]

	original, err := os.Open(originalPath)
	if err != nil {
		return fmt.Errorf("error reading original: %w", err)
	}
	defer original.Close()

	patchFiles, err := openAll(diffPaths)
	if err != nil {
		return err
	}
	defer closeAll(patchFiles)

	out, err := sink.New(outputPath)
	if err != nil {
		return fmt.Errorf("error opening output: %w", err)
	}

	stop := cliutil.StartTicker(fmt.Sprintf("applying %d patch(es) to %s", len(patchFiles), originalPath))
	err = diffengine.ApplyMany(original, asReaders(patchFiles), out)
	stop()
	if err != nil {
		_ = out.Abort()
		return err
	}
	if err := out.Commit(); err != nil {
		return fmt.Errorf("error while writing: %w", err)
	}
	return nil
}

func runCombine(args []string) error {
	if len(args) < 3 {
		usage()
		os.Exit(1)
	}
	outputPath := args[len(args)-1]
	diffPaths := args[:len(args)-1]

	patchFiles, err := openAll(diffPaths)
	if err != nil {
		return err
	}
	defer closeAll(patchFiles)

	out, err := sink.New(outputPath)
	if err != nil {
		return fmt.Errorf("error opening output: %w", err)
	}

	if err := diffengine.Combine(asReaders(patchFiles), out); err != nil {
		_ = out.Abort()
		return err
	}
	if err := out.Commit(); err != nil {
		return fmt.Errorf("error while writing: %w", err)
	}
	return nil
}

func runMeasure(args []string) error {
	inBytes := false
	if len(args) > 0 && args[0] == "--in-bytes" {
		inBytes = true
		args = args[1:]
	}
	if len(args) != 2 {
		usage()
		os.Exit(1)
	}

	origF, origLines, err := hashedLinesOf(args[0])
	if err != nil {
		return err
	}
	defer origF.Close()

	editF, editLines, err := hashedLinesOf(args[1])
	if err != nil {
		return err
	}
	defer editF.Close()

	size, err := diffengine.Measure(origLines, editLines)
	if err != nil {
		return err
	}

	if inBytes {
		fmt.Println(size)
	} else {
		fmt.Println(cliutil.HumanSize(size))
	}
	return nil
}
