// Command decompose splits a PSD/PSB file into a content-addressed object
// store plus a ".decomposed" index, and can restore, size, checksum,
// remove, and garbage-collect such indexes.
//
// Action dispatch grounded on original_source/src/bin_decompose.rs's Action
// enum (Create is the default when no action flag is given; --restore,
// --size, --sha, --remove, --cleanup select the others) and its
// --prefix=/--postfix=/--as-bytes modifier flags.
package main

import (
	"flag"
	"fmt"
	"os"

	"psdstruct/internal/cliutil"
	"psdstruct/internal/psderr"
	"psdstruct/internal/store"
	"psdstruct/internal/version"
	"psdstruct/internal/workerpool"
)

func main() {
	restore := flag.Bool("restore", false, "restore each .decomposed index back into a file")
	size := flag.Bool("size", false, "report the size each given path occupies")
	sha := flag.Bool("sha", false, "print the sha256 checksum of each given path's content")
	remove := flag.Bool("remove", false, "remove each given .decomposed index and sweep orphaned objects")
	cleanup := flag.Bool("cleanup", false, "sweep orphaned objects from each given directory")
	prefix := flag.String("prefix", "", "prefix to add to restored file names")
	postfix := flag.String("postfix", "", "postfix to add to restored file names")
	asBytes := flag.Bool("as-bytes", false, "print --size output as a raw byte count instead of human-readable")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}

	selected := 0
	for _, b := range []bool{*restore, *size, *sha, *remove, *cleanup} {
		if b {
			selected++
		}
	}
	if selected > 1 {
		fmt.Fprintf(os.Stderr, "%s: only one of --restore, --size, --sha, --remove, --cleanup may be given\n", psderr.ErrDoubleAction)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: decompose [--restore [--prefix=P] [--postfix=P]] [--size [--as-bytes]] [--sha] [--remove] [--cleanup] file...")
		os.Exit(1)
	}

	var err error
	switch {
	case *restore:
		err = runRestore(args, *prefix, *postfix)
	case *size:
		err = runSize(args, *asBytes)
	case *sha:
		err = runSha(args)
	case *remove:
		err = runRemove(args)
	case *cleanup:
		err = runCleanup(args)
	default:
		err = runCreate(args)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCreate(paths []string) error {
	for _, p := range paths {
		stop := cliutil.StartTicker(fmt.Sprintf("decomposing %s", p))
		err := store.Decompose(p)
		stop()
		if err != nil {
			return fmt.Errorf("error decomposing %q: %w", p, err)
		}
	}
	return nil
}

func runRestore(paths []string, prefix, postfix string) error {
	for _, p := range paths {
		dest, err := store.RestoredPath(p, prefix, postfix)
		if err != nil {
			return fmt.Errorf("error restoring %q: %w", p, err)
		}
		stop := cliutil.StartTicker(fmt.Sprintf("restoring %s", p))
		err = store.Restore(p, dest)
		stop()
		if err != nil {
			return fmt.Errorf("error restoring %q: %w", p, err)
		}
	}
	return nil
}

// runSize reports accumulated size. Two modes, inferred from the inputs:
// decomposed mode (every path is a ".decomposed" index) reports the sum of
// object sizes each index references. Composed mode (no path is an index)
// reports, per calc_presumed_size (original_source/src/bin_decompose.rs),
// both the raw sum of the input files' on-disk sizes and the size of the
// decomposed_objects directory those inputs would together produce: the
// sum across the *union* of unique (hash, size) region pairs seen across
// every input, not a per-file sum, since a region shared between two
// inputs is only ever written once. Mixing the two kinds in one invocation
// is a hard error, not a heuristic, per spec.md §9.
func runSize(paths []string, asBytes bool) error {
	decomposedCount := 0
	for _, p := range paths {
		if store.IsIndexPath(p) {
			decomposedCount++
		}
	}
	if decomposedCount != 0 && decomposedCount != len(paths) {
		return fmt.Errorf("%w: cannot mix decomposed and non-decomposed paths in a single --size invocation", psderr.ErrModeConflict)
	}

	format := func(sz uint64) string {
		if asBytes {
			return fmt.Sprintf("%d", sz)
		}
		return cliutil.HumanSize(sz)
	}

	if decomposedCount == len(paths) && decomposedCount != 0 {
		sizes, err := workerpool.Map(paths, store.DecomposedSize)
		if err != nil {
			return fmt.Errorf("error computing size: %w", err)
		}
		var total uint64
		for i, sz := range sizes {
			fmt.Printf("%s - %s\n", paths[i], format(sz))
			total += sz
		}
		fmt.Printf("\ntotal size - %s\n", format(total))
		return nil
	}

	perFile, err := workerpool.Map(paths, store.UniqueRegionSizes)
	if err != nil {
		return fmt.Errorf("error computing size: %w", err)
	}

	union := make(map[string]uint64)
	var fileSizeTotal uint64
	for i, sizes := range perFile {
		var fileUnique uint64
		for hash, sz := range sizes {
			fileUnique += sz
			union[hash] = sz
		}
		fmt.Printf("%s - %s\n", paths[i], format(fileUnique))

		info, err := os.Stat(paths[i])
		if err != nil {
			return fmt.Errorf("error stating %q: %w", paths[i], err)
		}
		fileSizeTotal += uint64(info.Size())
	}

	var decomposedTotal uint64
	for _, sz := range union {
		decomposedTotal += sz
	}

	fmt.Printf("\ntotal size         - %s\n", format(fileSizeTotal))
	fmt.Printf("decomposed_objects - %s\n", format(decomposedTotal))
	return nil
}

func runSha(paths []string) error {
	sums, err := workerpool.Map(paths, store.ShaSum)
	if err != nil {
		return fmt.Errorf("error hashing: %w", err)
	}
	for i, p := range paths {
		fmt.Printf("%s  %s\n", sums[i], p)
	}
	return nil
}

func runRemove(paths []string) error {
	for _, p := range paths {
		if err := store.Remove(p); err != nil {
			return fmt.Errorf("error removing %q: %w", p, err)
		}
	}
	return nil
}

func runCleanup(dirs []string) error {
	for _, d := range dirs {
		stop := cliutil.StartTicker(fmt.Sprintf("cleaning up %s", d))
		err := store.Cleanup(d)
		stop()
		if err != nil {
			return fmt.Errorf("error cleaning up %q: %w", d, err)
		}
	}
	return nil
}
