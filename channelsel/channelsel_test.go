package channelsel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsDisjointChannels(t *testing.T) {
	s := Selection{PC: 0, FL: []int{1, 2}}
	assert.NoError(t, s.Validate(3))
}

func TestValidateAcceptsNoPC(t *testing.T) {
	s := Selection{PC: None, FL: []int{0, 1}}
	assert.NoError(t, s.Validate(2))
}

func TestValidateRejectsPCAlsoSelectedAsFL(t *testing.T) {
	s := Selection{PC: 1, FL: []int{0, 1}}
	assert.Error(t, s.Validate(2))
}

func TestValidateRejectsOutOfRangePC(t *testing.T) {
	s := Selection{PC: 5, FL: nil}
	assert.Error(t, s.Validate(2))
}

func TestValidateRejectsOutOfRangeFL(t *testing.T) {
	s := Selection{PC: None, FL: []int{0, 9}}
	assert.Error(t, s.Validate(2))
}

func TestHasPC(t *testing.T) {
	require.False(t, Selection{PC: None}.HasPC())
	require.True(t, Selection{PC: 0}.HasPC())
}
