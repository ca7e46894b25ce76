// Package hashiter walks a region.Indexes in the fixed, flattened template
// order (component C4) and computes a SHA-256 hash for each named region's
// byte content, streaming the underlying file rather than buffering it.
//
// The template and the "{n}" expansion rules (image resources, layers, and
// per-layer-per-channel pixel data each expand to however many numbered
// entries the file actually has) are ported directly from
// original_source/src/common.rs's get_lines and the LINES template in
// psd_file.rs. The per-region streaming hash follows diff.rs's compute_hash,
// reimplemented idiomatically with io.Copy into a crypto/sha256 hash.Hash
// instead of a manual read loop.
package hashiter

import (
	"crypto/sha256"
	"fmt"
	"io"

	"psdstruct/internal/psderr"
	"psdstruct/internal/region"
)

// template lists the region labels in canonical walk order. Entries ending
// in "{n}" are expanded at walk time to however many sequentially numbered
// instances exist in the index.
var template = []string{
	"header",
	"color_mode_section_length",
	"color_mode_section",
	"image_resources_length",
	"image_resources/image_resource_{n}",
	"layers_resources_length",
	"layers_resources/layers_info_length",
	"layers_resources/layers_info/layer_count",
	"layers_resources/layers_info/layer_{n}",
	"layers_resources/layers_info/channel_data/layer_{n}/channel_{n}",
	"layers_resources/padding",
	"layers_resources/global_mask_length",
	"layers_resources/global_mask",
	"layers_resources/additional_layer_information",
	"image_data",
}

// Line is one resolved, hashed region: its label, byte range, and the hex
// SHA-256 digest of its content.
type Line struct {
	Label  string
	Offset uint64
	Size   uint64
	Hash   string
}

// Lines resolves the fixed template against ix, in order, returning one
// Line per concrete (non-"{n}") label found. "{n}" entries stop expanding
// at the first number with no matching label. "layers_resources/padding" is
// optional and silently skipped when absent (the parser only inserts it when
// channel data ends before the end of layers_info); any other template
// entry with no matching label fails with psderr.ErrMissingRegion.
func Lines(ix *region.Indexes) ([]Line, error) {
	var out []Line

	find := func(label string) (region.Range, bool) {
		return ix.Get(label)
	}

	for _, entry := range template {
		switch entry {
		case "image_resources/image_resource_{n}":
			for i := 0; ; i++ {
				label := fmt.Sprintf("image_resources/image_resource_%d", i)
				r, ok := find(label)
				if !ok {
					break
				}
				out = append(out, Line{Label: label, Offset: r.Offset, Size: r.Size})
			}
		case "layers_resources/layers_info/layer_{n}":
			for i := 0; ; i++ {
				label := fmt.Sprintf("layers_resources/layers_info/layer_%d", i)
				r, ok := find(label)
				if !ok {
					break
				}
				out = append(out, Line{Label: label, Offset: r.Offset, Size: r.Size})
			}
		case "layers_resources/layers_info/channel_data/layer_{n}/channel_{n}":
			for layer := 0; ; layer++ {
				channel := 0
				for ; ; channel++ {
					label := fmt.Sprintf("layers_resources/layers_info/channel_data/layer_%d/channel_%d", layer, channel)
					r, ok := find(label)
					if !ok {
						break
					}
					out = append(out, Line{Label: label, Offset: r.Offset, Size: r.Size})
				}
				if channel == 0 {
					break
				}
			}
		default:
			r, ok := find(entry)
			if !ok {
				if entry == "layers_resources/padding" {
					continue
				}
				return nil, fmt.Errorf("%w: %q", psderr.ErrMissingRegion, entry)
			}
			out = append(out, Line{Label: entry, Offset: r.Offset, Size: r.Size})
		}
	}

	return out, nil
}

// HashAll fills in the Hash field of every Line by seeking src to each
// region's offset and streaming exactly Size bytes through SHA-256. src
// must support Seek (e.g. *os.File); lines are processed in order, so a
// single forward-seeking pass over src suffices as long as the template's
// ranges are themselves non-decreasing, which holds for a structurally
// valid PSD/PSB file.
func HashAll(src io.ReadSeeker, lines []Line) error {
	for i := range lines {
		if _, err := src.Seek(int64(lines[i].Offset), io.SeekStart); err != nil {
			return fmt.Errorf("hashiter: seek %q: %w", lines[i].Label, err)
		}
		h := sha256.New()
		if _, err := io.CopyN(h, src, int64(lines[i].Size)); err != nil {
			return fmt.Errorf("hashiter: hash %q: %w", lines[i].Label, err)
		}
		lines[i].Hash = fmt.Sprintf("%x", h.Sum(nil))
	}
	return nil
}

// HashedLines is a convenience wrapper combining Lines and HashAll.
func HashedLines(src io.ReadSeeker, ix *region.Indexes) ([]Line, error) {
	lines, err := Lines(ix)
	if err != nil {
		return nil, err
	}
	if err := HashAll(src, lines); err != nil {
		return nil, err
	}
	return lines, nil
}
