package merge

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psdstruct/internal/psdformat"
)

// buildPSDWithImageResource constructs a minimal PSD carrying one non-empty
// image resource, so Flatten's zeroing of image_resources_length is
// actually exercised against real content.
func buildPSDWithImageResource() []byte {
	var b bytes.Buffer

	b.WriteString("8BPS")
	b.Write([]byte{0x00, 0x01})
	b.Write(make([]byte, 6))
	b.Write([]byte{0x00, 0x03})
	b.Write([]byte{0x00, 0x00, 0x00, 0x01})
	b.Write([]byte{0x00, 0x00, 0x00, 0x01})
	b.Write([]byte{0x00, 0x08})
	b.Write([]byte{0x00, 0x03})

	b.Write([]byte{0x00, 0x00, 0x00, 0x00}) // color_mode_section_length

	// one image resource: signature(4) + id(2) + name_length(1)=0 + pad(1) + data_length(4)=2 + data(2, padded already even)
	resource := []byte{
		0x38, 0x42, 0x49, 0x4D, // 8BIM
		0x04, 0x00, // id
		0x00,       // name_length = 0
		0x00,       // padding byte for empty name
		0x00, 0x00, 0x00, 0x02, // data_length = 2
		0xFE, 0xED, // data
	}
	irLen := uint32(len(resource))
	b.Write([]byte{byte(irLen >> 24), byte(irLen >> 16), byte(irLen >> 8), byte(irLen)})
	b.Write(resource)

	b.Write([]byte{0x00, 0x00, 0x00, 0x0A}) // layers_resources_length = 10
	b.Write([]byte{0x00, 0x00, 0x00, 0x02}) // layers_info_length = 2
	b.Write([]byte{0x00, 0x00})             // layer_count = 0
	b.Write([]byte{0x00, 0x00, 0x00, 0x00}) // global_mask_length = 0

	b.Write([]byte{0x00, 0x00})             // image_data/compression_method
	b.Write([]byte{0xAA, 0xAA, 0xAA, 0xAA}) // image_data/data

	return b.Bytes()
}

func TestFlattenZeroesImageResourcesAndLayers(t *testing.T) {
	src := buildPSDWithImageResource()

	var out bytes.Buffer
	require.NoError(t, Flatten(bytes.NewReader(src), &out))

	result, err := psdformat.Parse(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)

	irLen, ok := result.Indexes.Get("image_resources_length")
	require.True(t, ok)
	r := out.Bytes()[irLen.Offset : irLen.Offset+irLen.Size]
	assert.Equal(t, []byte{0, 0, 0, 0}, r)

	ir, ok := result.Indexes.Get("image_resources")
	require.True(t, ok)
	assert.Equal(t, uint64(0), ir.Size, "no image resource should survive flattening")

	header, ok := result.Indexes.Get("header")
	require.True(t, ok)
	origHeader := src[:26]
	assert.Equal(t, origHeader, out.Bytes()[header.Offset:header.Offset+header.Size])

	imageData, ok := result.Indexes.Get("image_data")
	require.True(t, ok)
	assert.Equal(t, src[len(src)-6:], out.Bytes()[imageData.Offset:imageData.Offset+imageData.Size])
}
