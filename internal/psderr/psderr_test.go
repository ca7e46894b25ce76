package psderr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelsAreDistinct(t *testing.T) {
	all := []error{
		ErrInvalidSignature,
		ErrUnsupportedVersion,
		ErrUnexpectedEOF,
		ErrInconsistentIndex,
		ErrMissingRegion,
		ErrMissingObject,
		ErrInvalidPatchAction,
		ErrUsage,
		ErrModeConflict,
		ErrDoubleAction,
	}
	for i, a := range all {
		for j, b := range all {
			if i == j {
				continue
			}
			assert.NotErrorIs(t, a, b)
		}
	}
}

func TestWrappedSentinelIsDetectable(t *testing.T) {
	wrapped := fmt.Errorf("while reading header: %w", ErrInvalidSignature)
	assert.True(t, errors.Is(wrapped, ErrInvalidSignature))
	assert.False(t, errors.Is(wrapped, ErrUnexpectedEOF))
}
