package safeguard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall_NoPanic_PassesThroughResult(t *testing.T) {
	err := Call(func() error { return nil })
	assert.NoError(t, err)

	sentinel := errors.New("boom")
	err = Call(func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}

func TestCall_Panic_RecoveredAsError(t *testing.T) {
	err := Call(func() error {
		panic("agent exploded")
	})
	require.Error(t, err)
	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Error(), "agent exploded")
}
