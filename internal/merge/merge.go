// Package merge implements component C7: flattening a PSD/PSB file down to
// its header, color mode section, and composite image data, discarding
// image resources and per-layer content while keeping the global layer
// mask and additional layer information, and rewriting the length fields
// that describe the sections being dropped or resized.
//
// Grounded on spec.md §4.7's description of the flattened output shape;
// original_source/src/bin_merge.rs calls a PSDFile::write_composite method
// that isn't present in the retrieval pack's copy of psd_file.rs, so the
// byte-layout here is built directly from the structural region index
// (internal/psdformat, internal/region) instead, with the length-field
// rewrite performed in the teacher's binary-rewrite style (see
// internal/diskimage's *_write.go section-length recomputation in the
// original WiCOS64 sources this package is adapted from).
package merge

import (
	"fmt"
	"io"

	"psdstruct/internal/bytecodec"
	"psdstruct/internal/psdformat"
	"psdstruct/internal/region"
)

// Flatten reads the PSD/PSB structure of src and writes the flattened
// composite to dst: header, color mode section, a zeroed image-resources
// length, a recomputed layers-resources length, a zeroed layers-info
// length, the original global mask and additional layer information, and
// the original image data.
func Flatten(src io.ReadSeeker, dst io.Writer) error {
	result, err := psdformat.Parse(src)
	if err != nil {
		return fmt.Errorf("merge: parse source: %w", err)
	}
	ix := result.Indexes
	lenWidth := int(result.FileType.LengthWidth())

	if err := copyRegion(src, dst, ix, "header"); err != nil {
		return err
	}
	if err := copyRegion(src, dst, ix, "color_mode_section_length"); err != nil {
		return err
	}
	if err := copyRegion(src, dst, ix, "color_mode_section"); err != nil {
		return err
	}

	zeroImageResourcesLength, err := bytecodec.WriteUintBE(0, 4)
	if err != nil {
		return err
	}
	if _, err := dst.Write(zeroImageResourcesLength); err != nil {
		return fmt.Errorf("merge: write image_resources_length: %w", err)
	}

	globalMaskLengthRange, ok := ix.Get("layers_resources/global_mask_length")
	if !ok {
		return fmt.Errorf("merge: missing layers_resources/global_mask_length")
	}
	globalMaskRange, ok := ix.Get("layers_resources/global_mask")
	if !ok {
		return fmt.Errorf("merge: missing layers_resources/global_mask")
	}
	additionalInfoRange, ok := ix.Get("layers_resources/additional_layer_information")
	if !ok {
		return fmt.Errorf("merge: missing layers_resources/additional_layer_information")
	}

	layersResourcesLength := uint64(lenWidth) + globalMaskLengthRange.Size + globalMaskRange.Size + additionalInfoRange.Size

	lrl, err := bytecodec.WriteUintBE(layersResourcesLength, lenWidth)
	if err != nil {
		return err
	}
	if _, err := dst.Write(lrl); err != nil {
		return fmt.Errorf("merge: write layers_resources_length: %w", err)
	}

	zeroLayersInfoLength, err := bytecodec.WriteUintBE(0, lenWidth)
	if err != nil {
		return err
	}
	if _, err := dst.Write(zeroLayersInfoLength); err != nil {
		return fmt.Errorf("merge: write layers_resources/layers_info_length: %w", err)
	}

	if err := copyRegion(src, dst, ix, "layers_resources/global_mask_length"); err != nil {
		return err
	}
	if err := copyRegion(src, dst, ix, "layers_resources/global_mask"); err != nil {
		return err
	}
	if err := copyRegion(src, dst, ix, "layers_resources/additional_layer_information"); err != nil {
		return err
	}
	if err := copyRegion(src, dst, ix, "image_data"); err != nil {
		return err
	}

	return nil
}

func copyRegion(src io.ReadSeeker, dst io.Writer, ix *region.Indexes, label string) error {
	r, ok := ix.Get(label)
	if !ok {
		return fmt.Errorf("merge: missing region %q", label)
	}
	if _, err := src.Seek(int64(r.Offset), io.SeekStart); err != nil {
		return fmt.Errorf("merge: seek to %q: %w", label, err)
	}
	if _, err := io.CopyN(dst, src, int64(r.Size)); err != nil {
		return fmt.Errorf("merge: copy %q: %w", label, err)
	}
	return nil
}
