package hashiter

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psdstruct/internal/psderr"
	"psdstruct/internal/psdformat"
	"psdstruct/internal/region"
)

// buildMinimalPSD mirrors psdformat's own fixture: a structurally valid,
// minimal PSD with zero layers and zero image resources.
func buildMinimalPSD() []byte {
	var b bytes.Buffer

	b.WriteString("8BPS")
	b.Write([]byte{0x00, 0x01})
	b.Write(make([]byte, 6))
	b.Write([]byte{0x00, 0x03})
	b.Write([]byte{0x00, 0x00, 0x00, 0x01})
	b.Write([]byte{0x00, 0x00, 0x00, 0x01})
	b.Write([]byte{0x00, 0x08})
	b.Write([]byte{0x00, 0x03})

	b.Write([]byte{0x00, 0x00, 0x00, 0x00})

	b.Write([]byte{0x00, 0x00, 0x00, 0x00})

	b.Write([]byte{0x00, 0x00, 0x00, 0x0A})
	b.Write([]byte{0x00, 0x00, 0x00, 0x02})
	b.Write([]byte{0x00, 0x00})
	b.Write([]byte{0x00, 0x00, 0x00, 0x00})

	b.Write([]byte{0x00, 0x00})
	b.Write([]byte{0xAA, 0xAA, 0xAA, 0xAA})

	return b.Bytes()
}

func TestLinesAndHashAll(t *testing.T) {
	data := buildMinimalPSD()
	src := bytes.NewReader(data)

	result, err := psdformat.Parse(src)
	require.NoError(t, err)

	lines, err := Lines(result.Indexes)
	require.NoError(t, err)
	require.NotEmpty(t, lines)

	require.NoError(t, HashAll(src, lines))

	var byLabel = make(map[string]Line)
	for _, l := range lines {
		byLabel[l.Label] = l
	}

	header, ok := byLabel["header"]
	require.True(t, ok)
	want := sha256.Sum256(data[0:26])
	assert.Equal(t, fmt.Sprintf("%x", want), header.Hash)

	imageData, ok := byLabel["image_data"]
	require.True(t, ok)
	wantImage := sha256.Sum256(data[len(data)-6:])
	assert.Equal(t, fmt.Sprintf("%x", wantImage), imageData.Hash)
}

func TestHashedLinesConvenienceWrapper(t *testing.T) {
	data := buildMinimalPSD()
	src := bytes.NewReader(data)

	result, err := psdformat.Parse(src)
	require.NoError(t, err)

	lines, err := HashedLines(src, result.Indexes)
	require.NoError(t, err)

	for _, l := range lines {
		assert.Len(t, l.Hash, 64)
	}
}

func TestLinesMissingRequiredLabel(t *testing.T) {
	// Every template entry but padding is mandatory; an index holding only
	// "header" lacks color_mode_section_length and must fail.
	ix := region.New()
	ix.Insert("header", 0, 26)
	_, err := Lines(ix)
	require.Error(t, err)
	assert.ErrorIs(t, err, psderr.ErrMissingRegion)
}
