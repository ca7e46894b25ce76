package workerpool

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}

	results, err := Map(items, func(i int) (int, error) {
		return i * i, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49, 64}, results)
}

func TestMapEmptyInput(t *testing.T) {
	results, err := Map[int, int](nil, func(i int) (int, error) {
		return i, nil
	})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestMapPropagatesFirstError(t *testing.T) {
	items := []int{1, 2, 3}
	_, err := Map(items, func(i int) (int, error) {
		if i == 2 {
			return 0, fmt.Errorf("boom at %d", i)
		}
		return i, nil
	})
	assert.Error(t, err)
}
