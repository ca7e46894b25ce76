// Command merge flattens a PSD/PSB file down to its composite image,
// discarding image resources and per-layer content.
//
// Grounded on original_source/src/bin_merge.rs's simple two-positional-
// argument shape (input, output or "-" for stdout).
package main

import (
	"fmt"
	"os"

	"psdstruct/internal/merge"
	"psdstruct/internal/sink"
	"psdstruct/internal/version"
)

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Println(version.Get().String())
		return
	}

	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: merge <input.psd> <output.psd|->")
		os.Exit(1)
	}

	if err := run(os.Args[1], os.Args[2]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(inputPath, outputPath string) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("error reading input psd: %w", err)
	}
	defer in.Close()

	out, err := sink.New(outputPath)
	if err != nil {
		return fmt.Errorf("error opening output: %w", err)
	}

	if err := merge.Flatten(in, out); err != nil {
		_ = out.Abort()
		return err
	}

	if err := out.Commit(); err != nil {
		return fmt.Errorf("error while writing: %w", err)
	}
	return nil
}
