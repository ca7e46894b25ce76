package store

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMinimalPSD mirrors the fixture used by internal/psdformat and
// internal/hashiter's own tests: a structurally valid, minimal PSD with
// zero layers and zero image resources.
func buildMinimalPSD(fill byte) []byte {
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
	b.Write([]byte{fill, fill, fill, fill})

	return b.Bytes()
}

func TestDecomposeAndRestoreRoundTrips(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "input.psd")
	data := buildMinimalPSD(0xAA)
	require.NoError(t, os.WriteFile(srcPath, data, 0o644))

	require.NoError(t, Decompose(srcPath))

	indexPath := IndexPath(srcPath)
	_, err := os.Stat(indexPath)
	require.NoError(t, err)

	restoredPath := filepath.Join(dir, "restored.psd")
	require.NoError(t, Restore(indexPath, restoredPath))

	got, err := os.ReadFile(restoredPath)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRestoredPathAppliesPrefixPostfix(t *testing.T) {
	got, err := RestoredPath("/tmp/foo/bar.psd.decomposed", "pre-", "-post")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/foo/pre-bar-post.psd", got)
}

func TestRestoredPathRejectsNonIndexPath(t *testing.T) {
	_, err := RestoredPath("/tmp/foo/bar.psd", "", "")
	assert.Error(t, err)
}

func TestShaSumMatchesForPlainAndDecomposed(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "input.psd")
	data := buildMinimalPSD(0xBB)
	require.NoError(t, os.WriteFile(srcPath, data, 0o644))

	want := fmt.Sprintf("%x", sha256.Sum256(data))

	plainSum, err := ShaSum(srcPath)
	require.NoError(t, err)
	assert.Equal(t, want, plainSum)

	require.NoError(t, Decompose(srcPath))
	decomposedSum, err := ShaSum(IndexPath(srcPath))
	require.NoError(t, err)
	assert.Equal(t, want, decomposedSum)
}

func TestPresumedAndDecomposedSizeAgree(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "input.psd")
	data := buildMinimalPSD(0xCC)
	require.NoError(t, os.WriteFile(srcPath, data, 0o644))

	presumed, err := PresumedSize(srcPath)
	require.NoError(t, err)
	assert.Greater(t, presumed, uint64(0))

	require.NoError(t, Decompose(srcPath))
	onDisk, err := DecomposedSize(IndexPath(srcPath))
	require.NoError(t, err)
	assert.Equal(t, presumed, onDisk)
}

func TestUniqueRegionSizesExcludesEmptyHashAndDedupsWithinFile(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "input.psd")
	data := buildMinimalPSD(0xDD)
	require.NoError(t, os.WriteFile(srcPath, data, 0o644))

	sizes, err := UniqueRegionSizes(srcPath)
	require.NoError(t, err)

	for hash := range sizes {
		assert.NotEqual(t, EmptyHash, hash)
	}

	var total uint64
	for _, sz := range sizes {
		total += sz
	}
	presumed, err := PresumedSize(srcPath)
	require.NoError(t, err)
	assert.Equal(t, presumed, total, "PresumedSize must equal the sum of UniqueRegionSizes's own map")
}

func TestUniqueRegionSizesUnionsAcrossFilesWithoutDoubleCounting(t *testing.T) {
	dir := t.TempDir()

	// Two files built from the identical fill byte share every region hash;
	// a caller unioning their UniqueRegionSizes maps (keyed by hash) must
	// therefore see the same total as either file alone, not double it.
	path1 := filepath.Join(dir, "one.psd")
	path2 := filepath.Join(dir, "two.psd")
	data := buildMinimalPSD(0xEE)
	require.NoError(t, os.WriteFile(path1, data, 0o644))
	require.NoError(t, os.WriteFile(path2, data, 0o644))

	sizes1, err := UniqueRegionSizes(path1)
	require.NoError(t, err)
	sizes2, err := UniqueRegionSizes(path2)
	require.NoError(t, err)

	union := make(map[string]uint64)
	for h, sz := range sizes1 {
		union[h] = sz
	}
	for h, sz := range sizes2 {
		union[h] = sz
	}

	var unionTotal uint64
	for _, sz := range union {
		unionTotal += sz
	}
	var singleTotal uint64
	for _, sz := range sizes1 {
		singleTotal += sz
	}
	assert.Equal(t, singleTotal, unionTotal, "identical files must not double-count shared regions in the union")
}

func TestCleanupSweepsOrphanedObjects(t *testing.T) {
	dir := t.TempDir()

	path1 := filepath.Join(dir, "one.psd")
	require.NoError(t, os.WriteFile(path1, buildMinimalPSD(0x11), 0o644))
	require.NoError(t, Decompose(path1))

	path2 := filepath.Join(dir, "two.psd")
	require.NoError(t, os.WriteFile(path2, buildMinimalPSD(0x22), 0o644))
	require.NoError(t, Decompose(path2))

	oneHashes, err := readIndex(IndexPath(path1))
	require.NoError(t, err)

	require.NoError(t, Remove(IndexPath(path1)))

	objDir := ObjectsDir(path1)
	var remainingHashes []string
	hashes, err := readIndex(IndexPath(path2))
	require.NoError(t, err)
	remainingHashes = append(remainingHashes, hashes...)

	for _, h := range remainingHashes {
		if h == EmptyHash {
			continue
		}
		_, err := os.Stat(shardPath(objDir, h))
		assert.NoError(t, err, "objects still referenced by two.psd.decomposed must survive cleanup")
	}

	live := make(map[string]bool)
	for _, h := range remainingHashes {
		live[h] = true
	}
	for _, h := range oneHashes {
		if h == EmptyHash || live[h] {
			continue
		}
		_, err := os.Stat(shardPath(objDir, h))
		assert.True(t, os.IsNotExist(err), "objects only referenced by one.psd.decomposed must be swept")
	}

	_, err = os.Stat(IndexPath(path1))
	assert.True(t, os.IsNotExist(err))
}
