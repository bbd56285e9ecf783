package pyamaerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap("segment", 3, nil))
}

func TestWrapPreservesStageAndFOV(t *testing.T) {
	err := Wrap("segment", 3, ErrInvalidShape)

	var se *StageError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "segment", se.Stage)
	assert.Equal(t, 3, se.FOV)
	assert.True(t, errors.Is(err, ErrInvalidShape))
}

func TestWrapMessageNamesStageAndFOV(t *testing.T) {
	err := Wrap("track", 7, ErrNumericFailure)
	assert.Contains(t, err.Error(), "track")
	assert.Contains(t, err.Error(), "7")
}

func TestIsCancelledMatchesSentinel(t *testing.T) {
	assert.True(t, IsCancelled(Wrap("copy", 0, ErrCancelled)))
}

func TestIsCancelledMatchesContextCanceled(t *testing.T) {
	assert.True(t, IsCancelled(context.Canceled))
}

func TestIsCancelledFalseForOtherErrors(t *testing.T) {
	assert.False(t, IsCancelled(ErrNotFound))
}
