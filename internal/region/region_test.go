package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndGet(t *testing.T) {
	ix := New()
	ix.Insert("header", 0, 26)
	ix.Insert("color_mode_section", 26, 10)

	r, ok := ix.Get("header")
	require.True(t, ok)
	assert.Equal(t, Range{Offset: 0, Size: 26}, r)
	assert.Equal(t, uint64(26), r.End())

	_, ok = ix.Get("missing")
	assert.False(t, ok)
}

func TestLabelsPreservesInsertionOrder(t *testing.T) {
	ix := New()
	ix.Insert("a", 0, 1)
	ix.Insert("c", 1, 1)
	ix.Insert("b", 2, 1)

	assert.Equal(t, []string{"a", "c", "b"}, ix.Labels())
	assert.Equal(t, 3, ix.Len())
}

func TestHas(t *testing.T) {
	ix := New()
	ix.Insert("only", 0, 5)
	assert.True(t, ix.Has("only"))
	assert.False(t, ix.Has("nope"))
}

func TestEachVisitsInOrder(t *testing.T) {
	ix := New()
	ix.Insert("first", 0, 4)
	ix.Insert("second", 4, 8)

	var seen []string
	ix.Each(func(label string, r Range) {
		seen = append(seen, label)
	})
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestDuplicateInsertPanics(t *testing.T) {
	ix := New()
	ix.Insert("dup", 0, 1)
	assert.Panics(t, func() {
		ix.Insert("dup", 5, 1)
	})
}

func TestLabelsReturnsACopy(t *testing.T) {
	ix := New()
	ix.Insert("a", 0, 1)

	labels := ix.Labels()
	labels[0] = "mutated"

	assert.Equal(t, []string{"a"}, ix.Labels())
}
