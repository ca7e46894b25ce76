// Package cliutil holds the small pieces of scaffolding shared by the
// psdstruct command binaries (cmd/decompose and cmd/diff use it): the
// PSDDIFF_VERBOSE runtime toggle, an
// elapsed-seconds progress ticker gated by it, and the human-readable
// byte-size formatter.
//
// VerboseFromEnv follows the teacher's os.Getenv-based toggles in
// cmd/wicos64-server/main.go, generalized from a -log-file flag to a single
// environment variable since these are one-shot CLI tools rather than a
// long-running server with its own flag set. StartTicker's background
// time.Ticker loop follows cmd/wicos64-tray/main_windows.go's tray-tooltip
// refresh goroutine (a ticker plus a for-range over its channel), adapted to
// stop on an explicit signal rather than run for the process lifetime.
package cliutil

import (
	"fmt"
	"os"
	"time"
)

// VerboseFromEnv reports whether PSDDIFF_VERBOSE is set to "true", enabling
// the elapsed-seconds progress ticker for long-running operations.
func VerboseFromEnv() bool {
	return os.Getenv("PSDDIFF_VERBOSE") == "true"
}

// StartTicker begins printing an elapsed-seconds progress line to stderr
// once a second, labelled with label, when PSDDIFF_VERBOSE is enabled; it is
// a no-op otherwise. The returned func stops the ticker and must be called
// (callers should defer it immediately) once the operation it covers
// finishes.
func StartTicker(label string) func() {
	if !VerboseFromEnv() {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		start := time.Now()
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				fmt.Fprintf(os.Stderr, "%s: %ds elapsed\n", label, int(time.Since(start).Seconds()))
			}
		}
	}()
	return func() { close(done) }
}

const (
	gibibyte = 1 << 30
	mebibyte = 1 << 20
	kibibyte = 1 << 10
)

// HumanSize formats size using binary (power-of-two) units: GB/MB/KB/B,
// each component taking the remainder after the larger units. This uses the
// canonical bit-mask arithmetic (1 GB = 2^30, 1 MB = 2^20, 1 KB = 2^10)
// rather than the floating-point GIGABYTE/MEGABYTE/KILOBYTE constants in
// bin_decompose.rs's bytes_to_human_readable, whose GIGABYTE constant
// (1_063_256_064.0) is neither 10^9 nor 2^30 and silently misreports sizes
// at the gigabyte scale — the bug spec.md explicitly calls out as one to
// fix rather than preserve.
func HumanSize(size uint64) string {
	gb := size / gibibyte
	rem := size % gibibyte
	mb := rem / mebibyte
	rem = rem % mebibyte
	kb := rem / kibibyte
	b := rem % kibibyte

	return fmt.Sprintf("%dGB %dMB %dKB %dB", gb, mb, kb, b)
}
