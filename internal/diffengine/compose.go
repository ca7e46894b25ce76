// Compose.go implements ApplyMany, Combine, and Measure — the three
// C5 operations beyond single-shot Create/Apply.
//
// original_source/src/bin_diff.rs calls psd_lib::diff::apply_diffs_vec and
// combine_diffs_vec, but neither function's body is present in this
// retrieval pack's copy of diff.rs (only create_diff/apply_diff are). Per
// spec.md §9's own note on the "combine semantics ambiguity" — "document
// and test only the equivalence property; do not promise byte-identical
// patches to a hypothetical single-pass composer" — Combine here is built
// from first principles as an exact patch-composition algorithm (expand
// patch 1 into a description of its output in terms of the original,
// replay patch 2's operations over that description, then re-coalesce),
// rather than reverse-engineered from a function this pack doesn't
// contain. ApplyMany's in-memory intermediate buffering follows the
// "source materializes intermediates in memory" option spec.md §9
// explicitly allows.
package diffengine

import (
	"bytes"
	"fmt"
	"io"

	"psdstruct/internal/hashiter"
)

// ApplyMany applies patches in order against original, piping each
// intermediate result (materialized in memory) as the "original" for the
// next patch. The final result is written to output.
func ApplyMany(original io.Reader, patches []io.Reader, output io.Writer) error {
	if len(patches) == 0 {
		_, err := io.Copy(output, original)
		return err
	}

	current := original
	for i, p := range patches {
		var buf bytes.Buffer
		dst := io.Writer(&buf)
		if i == len(patches)-1 {
			dst = output
		}
		if err := Apply(current, p, dst); err != nil {
			return fmt.Errorf("diffengine: apply patch %d of %d: %w", i+1, len(patches), err)
		}
		if i != len(patches)-1 {
			current = bytes.NewReader(buf.Bytes())
		}
	}
	return nil
}

// rawOp is one decoded wire-format action together with any literal bytes
// it carries (Add/Replace/ReplaceWithSameLength payloads).
type rawOp struct {
	kind      uint16
	size      uint64 // Skip/Remove/Add/ReplaceWithSameLength size, or Replace's removed size
	addSize   uint64 // Replace's added size
	data      []byte // literal payload for Add/Replace/ReplaceWithSameLength
}

func decodeOps(patch io.Reader) ([]rawOp, error) {
	if err := checkHeader(patch); err != nil {
		return nil, err
	}

	var ops []rawOp
	for {
		code, ok, err := readCode(patch)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		switch code {
		case actionSkip:
			n, err := readUint32(patch)
			if err != nil {
				return nil, err
			}
			ops = append(ops, rawOp{kind: actionSkip, size: n})
		case actionRemove:
			n, err := readUint32(patch)
			if err != nil {
				return nil, err
			}
			ops = append(ops, rawOp{kind: actionRemove, size: n})
		case actionAdd:
			n, err := readUint32(patch)
			if err != nil {
				return nil, err
			}
			data := make([]byte, n)
			if _, err := io.ReadFull(patch, data); err != nil {
				return nil, fmt.Errorf("diffengine: read add payload: %w", err)
			}
			ops = append(ops, rawOp{kind: actionAdd, size: n, data: data})
		case actionReplace:
			r, err := readUint32(patch)
			if err != nil {
				return nil, err
			}
			a, err := readUint32(patch)
			if err != nil {
				return nil, err
			}
			data := make([]byte, a)
			if _, err := io.ReadFull(patch, data); err != nil {
				return nil, fmt.Errorf("diffengine: read replace payload: %w", err)
			}
			ops = append(ops, rawOp{kind: actionReplace, size: r, addSize: a, data: data})
		case actionReplaceWithSameLength:
			n, err := readUint32(patch)
			if err != nil {
				return nil, err
			}
			data := make([]byte, n)
			if _, err := io.ReadFull(patch, data); err != nil {
				return nil, fmt.Errorf("diffengine: read rws payload: %w", err)
			}
			ops = append(ops, rawOp{kind: actionReplaceWithSameLength, size: n, data: data})
		default:
			return nil, fmt.Errorf("diffengine: unknown action code %#04x", code)
		}
	}
	return ops, nil
}

func checkHeader(patch io.Reader) error {
	sig := make([]byte, len(magic))
	if _, err := io.ReadFull(patch, sig); err != nil {
		return fmt.Errorf("diffengine: read signature: %w", err)
	}
	if string(sig) != magic {
		return fmt.Errorf("diffengine: signature mismatch")
	}
	var verBuf [2]byte
	if _, err := io.ReadFull(patch, verBuf[:]); err != nil {
		return fmt.Errorf("diffengine: read version: %w", err)
	}
	if uint16(verBuf[0])<<8|uint16(verBuf[1]) != wireVersion {
		return fmt.Errorf("diffengine: version mismatch")
	}
	return nil
}

func readCode(r io.Reader) (uint16, bool, error) {
	var buf [2]byte
	_, err := io.ReadFull(r, buf[:])
	if err == io.EOF {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("diffengine: read action code: %w", err)
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), true, nil
}

// segment is one piece of a described byte stream: either a reference to
// `size` bytes of the ultimate original file (in its forward order), or a
// literal chunk of data that exists only in some patch.
type segment struct {
	isOriginal bool
	size       uint64 // valid when isOriginal
	data       []byte // valid when !isOriginal
}

func (s segment) length() uint64 {
	if s.isOriginal {
		return s.size
	}
	return uint64(len(s.data))
}

// describeOutput expands ops (as applied to some input X) into the ordered
// list of segments making up the output, expressed in terms of whatever
// segments made up X (origSegs). Skip consumes from origSegs and carries the
// underlying segment's identity forward (original-reference segments stay
// original-reference); Remove and the removed side of Replace/RWS consume
// from origSegs and drop what they take; Add and the literal side of
// Replace/RWS introduce new literal segments.
func describeOutput(ops []rawOp, origSegs []segment) ([]segment, error) {
	cur := &segCursor{segs: origSegs}
	var out []segment

	for _, op := range ops {
		switch op.kind {
		case actionSkip:
			segs, err := cur.take(op.size)
			if err != nil {
				return nil, err
			}
			out = append(out, segs...)
		case actionRemove:
			if _, err := cur.take(op.size); err != nil {
				return nil, err
			}
		case actionAdd:
			out = append(out, segment{data: op.data})
		case actionReplace:
			if _, err := cur.take(op.size); err != nil {
				return nil, err
			}
			out = append(out, segment{data: op.data})
		case actionReplaceWithSameLength:
			if _, err := cur.take(op.size); err != nil {
				return nil, err
			}
			out = append(out, segment{data: op.data})
		}
	}
	return out, nil
}

// taggedOp is a flat, uncoalesced action against the ultimate original
// file: keep (Skip) or discard (Remove) an original-reference segment, or
// introduce literal data (Add). Building this list and then coalescing it
// is how composePair turns a replay over a description back into a patch.
type taggedOp struct {
	keep       bool // only meaningful when !literal: true=Skip, false=Remove
	literal    bool
	size       uint64
	data       []byte
}

// replayOverDescription walks ops2 (originally computed against some
// middle file B) over descB (B's content described in terms of the
// ultimate original A), producing the flat sequence of keep/discard/
// literal actions needed to turn A directly into ops2's output.
func replayOverDescription(ops2 []rawOp, descB []segment) ([]taggedOp, error) {
	cur := &segCursor{segs: descB}
	var out []taggedOp

	keepOrDiscard := func(segs []segment, keep bool) {
		for _, s := range segs {
			if s.isOriginal {
				out = append(out, taggedOp{keep: keep, size: s.size})
			} else if keep {
				out = append(out, taggedOp{literal: true, data: s.data})
			}
			// literal segments that are discarded leave no trace: they
			// never existed in the ultimate original, so no Remove is
			// needed to keep its read cursor aligned.
		}
	}

	for _, op := range ops2 {
		switch op.kind {
		case actionSkip:
			segs, err := cur.take(op.size)
			if err != nil {
				return nil, err
			}
			keepOrDiscard(segs, true)
		case actionRemove:
			segs, err := cur.take(op.size)
			if err != nil {
				return nil, err
			}
			keepOrDiscard(segs, false)
		case actionAdd:
			out = append(out, taggedOp{literal: true, data: op.data})
		case actionReplace:
			segs, err := cur.take(op.size)
			if err != nil {
				return nil, err
			}
			keepOrDiscard(segs, false)
			out = append(out, taggedOp{literal: true, data: op.data})
		case actionReplaceWithSameLength:
			segs, err := cur.take(op.size)
			if err != nil {
				return nil, err
			}
			keepOrDiscard(segs, false)
			out = append(out, taggedOp{literal: true, data: op.data})
		}
	}
	return out, nil
}

// coalesceTagged merges adjacent compatible taggedOps (consecutive kept
// originals, consecutive discarded originals, consecutive literals) and
// then fuses adjacent discard+literal runs into Replace/ReplaceWithSameLength,
// mirroring the same reduction rules Create uses.
func coalesceTagged(ops []taggedOp) []block {
	type rawRun struct {
		removing bool // true: accumulated discard size; false with literal=false: skip size
		literal  bool
		size     uint64
		data     []byte
	}
	var runs []rawRun
	for _, op := range ops {
		if op.literal {
			if len(op.data) == 0 {
				continue
			}
			if n := len(runs); n > 0 && runs[n-1].literal {
				runs[n-1].data = append(runs[n-1].data, op.data...)
				continue
			}
			runs = append(runs, rawRun{literal: true, data: append([]byte(nil), op.data...)})
			continue
		}
		if op.size == 0 {
			continue
		}
		if n := len(runs); n > 0 && !runs[n-1].literal && runs[n-1].removing == !op.keep {
			runs[n-1].size += op.size
			continue
		}
		runs = append(runs, rawRun{removing: !op.keep, size: op.size})
	}

	var blocks []block
	i := 0
	for i < len(runs) {
		r := runs[i]
		switch {
		case r.literal:
			blocks = append(blocks, block{kind: actionAdd, size: uint64(len(r.data))})
			blocks[len(blocks)-1].data = r.data
			i++
		case r.removing:
			if i+1 < len(runs) && runs[i+1].literal {
				add := runs[i+1]
				if r.size == uint64(len(add.data)) {
					blocks = append(blocks, block{kind: actionReplaceWithSameLength, size: r.size, data: add.data})
				} else {
					blocks = append(blocks, block{kind: actionReplace, size: uint64(len(add.data)), replaceSz: r.size, data: add.data})
				}
				i += 2
			} else {
				blocks = append(blocks, block{kind: actionRemove, size: r.size})
				i++
			}
		default:
			blocks = append(blocks, block{kind: actionSkip, size: r.size})
			i++
		}
	}
	return blocks
}

// segCursor walks a segment list, splitting segments as needed to satisfy
// arbitrary take(n) requests that don't align to segment boundaries.
type segCursor struct {
	segs   []segment
	idx    int
	offset uint64 // bytes already consumed from segs[idx]
}

func (c *segCursor) take(n uint64) ([]segment, error) {
	var out []segment
	for n > 0 {
		if c.idx >= len(c.segs) {
			return nil, fmt.Errorf("diffengine: patch composition ran past end of input")
		}
		cur := c.segs[c.idx]
		remaining := cur.length() - c.offset
		chunk := n
		if chunk > remaining {
			chunk = remaining
		}

		if cur.isOriginal {
			out = append(out, segment{isOriginal: true, size: chunk})
		} else {
			out = append(out, segment{data: cur.data[c.offset : c.offset+chunk]})
		}

		c.offset += chunk
		n -= chunk
		if c.offset == cur.length() {
			c.idx++
			c.offset = 0
		}
	}
	return out, nil
}

// composePair returns the block list for a combined patch equivalent to
// applying p1Ops then p2Ops in sequence against the same original file.
func composePair(p1Ops, p2Ops []rawOp) ([]block, error) {
	originalLen := uint64(0)
	for _, op := range p1Ops {
		switch op.kind {
		case actionSkip, actionRemove:
			originalLen += op.size
		case actionReplace:
			originalLen += op.size
		case actionReplaceWithSameLength:
			originalLen += op.size
		}
	}

	descB, err := describeOutput(p1Ops, []segment{{isOriginal: true, size: originalLen}})
	if err != nil {
		return nil, fmt.Errorf("diffengine: replay first patch: %w", err)
	}

	tagged, err := replayOverDescription(p2Ops, descB)
	if err != nil {
		return nil, fmt.Errorf("diffengine: replay second patch: %w", err)
	}

	return coalesceTagged(tagged), nil
}

func blocksToOps(blocks []block) []rawOp {
	ops := make([]rawOp, len(blocks))
	for i, b := range blocks {
		ops[i] = rawOp{kind: b.kind, size: b.size, addSize: b.size, data: b.data}
		if b.kind == actionReplace {
			ops[i].size = b.replaceSz
		}
	}
	return ops
}

// Combine reads two or more patches (each as an io.Reader positioned at
// its start) and returns a single equivalent patch: applying the combined
// patch against any original x the individual patches were valid for
// produces the same result as applying them in sequence.
func Combine(patches []io.Reader, output io.Writer) error {
	if len(patches) < 2 {
		return fmt.Errorf("diffengine: combine requires at least two patches")
	}

	acc, err := decodeOps(patches[0])
	if err != nil {
		return fmt.Errorf("diffengine: decode patch 1: %w", err)
	}

	for i := 1; i < len(patches); i++ {
		next, err := decodeOps(patches[i])
		if err != nil {
			return fmt.Errorf("diffengine: decode patch %d: %w", i+1, err)
		}
		blocks, err := composePair(acc, next)
		if err != nil {
			return fmt.Errorf("diffengine: compose patch %d: %w", i+1, err)
		}
		acc = blocksToOps(blocks)
	}

	return writeBlocks(blocksFromOps(acc), output)
}

func blocksFromOps(ops []rawOp) []block {
	blocks := make([]block, len(ops))
	for i, op := range ops {
		blocks[i] = block{kind: op.kind, size: op.size, data: op.data}
		if op.kind == actionReplace {
			blocks[i].size = op.addSize
			blocks[i].replaceSz = op.size
		}
	}
	return blocks
}

// Measure returns the byte length the serialized patch from Create(a, b)
// would occupy, without emitting it.
func Measure(originalLines, editedLines []hashiter.Line) (uint64, error) {
	blocks, err := diffBlocks(originalLines, editedLines)
	if err != nil {
		return 0, err
	}

	total := uint64(len(magic) + 2) // signature + version
	for _, b := range blocks {
		switch b.kind {
		case actionSkip, actionRemove:
			total += 2 + 4
		case actionAdd:
			total += 2 + 4 + b.size
		case actionReplace:
			total += 2 + 4 + 4 + b.size
		case actionReplaceWithSameLength:
			total += 2 + 4 + b.size
		}
	}
	return total, nil
}
