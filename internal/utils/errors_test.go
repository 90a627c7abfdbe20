package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapError_Nil(t *testing.T) {
	require.NoError(t, WrapError("context", nil))
}

func TestWrapError_Message(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError("block read", cause)

	require.Error(t, err)
	require.Equal(t, "block read: boom", err.Error())
}

func TestWrapError_Unwrap(t *testing.T) {
	err := WrapError("outer", WrapError("inner", ErrCorrupted))

	require.ErrorIs(t, err, ErrCorrupted)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, "outer", storeErr.Context)
}

func TestCorrupted(t *testing.T) {
	err := Corrupted("block %d content length %d", 7, 99)

	require.ErrorIs(t, err, ErrCorrupted)
	require.Contains(t, err.Error(), "block 7 content length 99")
}

func TestSentinels_Distinct(t *testing.T) {
	sentinels := []error{ErrKeyExists, ErrDisposed, ErrNotSupported, ErrCorrupted, ErrNotFound}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			require.NotErrorIs(t, a, b)
		}
	}
}
