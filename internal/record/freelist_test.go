package record

import (
	"testing"

	"github.com/scigolib/pagedb/internal/block"
	"github.com/scigolib/pagedb/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestFreeList_PushPop(t *testing.T) {
	s, _ := newTestStorage(t, smallParams)

	require.NoError(t, s.markAsFree(101))
	require.NoError(t, s.markAsFree(102))
	require.NoError(t, s.markAsFree(103))

	for _, want := range []uint32{103, 102, 101} {
		id, ok, err := s.tryFindFreeBlock()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, id)
	}

	_, ok, err := s.tryFindFreeBlock()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFreeList_GrowsTailWhenFull(t *testing.T) {
	s, stream := newTestStorage(t, smallParams)

	// 80 content bytes hold 20 ids; the 21st forces a new tail block.
	for i := uint32(0); i < 21; i++ {
		require.NoError(t, s.markAsFree(1000+i))
	}

	size, err := stream.Size()
	require.NoError(t, err)
	require.Equal(t, int64(2*smallParams.BlockSize), size)

	// The tail (block 1) holds exactly one id.
	tail := stream.Bytes()[smallParams.BlockSize:]
	require.Equal(t, int64(4), utils.Int64(tail[block.HeaderBlockContentLength*8:]))
	require.Equal(t, int64(0), utils.Int64(tail[block.HeaderNextBlockID*8:]))
}

func TestFreeList_EmptyTailCollapses(t *testing.T) {
	s, _ := newTestStorage(t, smallParams)

	for i := uint32(0); i < 21; i++ {
		require.NoError(t, s.markAsFree(1000 + i))
	}
	// Stack now: block 0 holds 1000..1019, tail block 1 holds 1020.

	id, ok, err := s.tryFindFreeBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1020), id)

	// The tail is now empty: popping again takes the predecessor's top
	// entry and leaves the tail's own id in its place.
	id, ok, err = s.tryFindFreeBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1019), id)

	id, ok, err = s.tryFindFreeBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1), id) // the collapsed tail block itself

	id, ok, err = s.tryFindFreeBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1018), id)
}

func TestFreeList_MisalignedContentIsFatal(t *testing.T) {
	s, stream := newTestStorage(t, smallParams)

	// Corrupt the free record's content length to a non-multiple of 4.
	head := stream.Bytes()[:smallParams.BlockSize]
	utils.PutInt64(head[block.HeaderBlockContentLength*8:], 6)

	_, _, err := s.tryFindFreeBlock()
	require.ErrorIs(t, err, utils.ErrCorrupted)

	err = s.markAsFree(7)
	require.ErrorIs(t, err, utils.ErrCorrupted)
}
