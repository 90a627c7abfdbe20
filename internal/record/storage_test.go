package record

import (
	"bytes"
	"testing"

	"github.com/scigolib/pagedb/internal/block"
	"github.com/scigolib/pagedb/internal/testutil"
	"github.com/scigolib/pagedb/internal/utils"
	"github.com/stretchr/testify/require"
)

// smallParams gives 80 content bytes per block, so multi-block chains are
// cheap to provoke.
var smallParams = block.Params{BlockSize: 128, HeaderSize: 48}

func newTestStorage(t *testing.T, params block.Params) (*Storage, *testutil.MemStream) {
	t.Helper()
	stream := testutil.NewMemStream()
	blocks, err := block.NewStorage(stream, params)
	require.NoError(t, err)
	s, err := NewStorage(blocks)
	require.NoError(t, err)
	return s, stream
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 253)
	}
	return data
}

func TestNewStorage_BootstrapsFreeRecord(t *testing.T) {
	_, stream := newTestStorage(t, smallParams)

	size, err := stream.Size()
	require.NoError(t, err)
	require.Equal(t, int64(smallParams.BlockSize), size)
}

func TestNewStorage_Reopen(t *testing.T) {
	s, stream := newTestStorage(t, smallParams)

	id, err := s.CreateBytes([]byte("persisted"))
	require.NoError(t, err)

	blocks, err := block.NewStorage(stream, smallParams)
	require.NoError(t, err)
	reopened, err := NewStorage(blocks)
	require.NoError(t, err)

	data, err := reopened.Find(id)
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), data)
}

func TestCreateFind_RoundTrips(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{name: "empty", size: 0},
		{name: "one byte", size: 1},
		{name: "single block", size: 80},
		{name: "two blocks", size: 81},
		{name: "many blocks", size: 1000},
		{name: "exact multiple", size: 240},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStorage(t, smallParams)

			payload := pattern(tt.size)
			id, err := s.CreateBytes(payload)
			require.NoError(t, err)

			got, err := s.Find(id)
			require.NoError(t, err)
			require.Equal(t, payload, got)
		})
	}
}

func TestCreate_ChainLength(t *testing.T) {
	s, stream := newTestStorage(t, smallParams)

	id, err := s.CreateBytes(pattern(1000))
	require.NoError(t, err)
	require.Equal(t, uint32(1), id)

	// ceil(1000/80) = 13 chain blocks plus the free record block.
	size, err := stream.Size()
	require.NoError(t, err)
	require.Equal(t, int64(14*smallParams.BlockSize), size)
}

func TestCreate_TwoRecordsAreDisjoint(t *testing.T) {
	s, _ := newTestStorage(t, smallParams)

	a := pattern(300)
	b := bytes.Repeat([]byte{0x5A}, 200)

	idA, err := s.CreateBytes(a)
	require.NoError(t, err)
	idB, err := s.CreateBytes(b)
	require.NoError(t, err)

	gotA, err := s.Find(idA)
	require.NoError(t, err)
	gotB, err := s.Find(idB)
	require.NoError(t, err)
	require.Equal(t, a, gotA)
	require.Equal(t, b, gotB)
}

func TestCreateWith_PassesAssignedID(t *testing.T) {
	s, _ := newTestStorage(t, smallParams)

	var seen uint32
	id, err := s.CreateWith(func(newID uint32) []byte {
		seen = newID
		payload := make([]byte, 4)
		utils.PutUint32(payload, newID)
		return payload
	})
	require.NoError(t, err)
	require.Equal(t, id, seen)

	data, err := s.Find(id)
	require.NoError(t, err)
	require.Equal(t, id, utils.Uint32(data))
}

func TestFind_MissingAndNonHead(t *testing.T) {
	s, _ := newTestStorage(t, smallParams)

	data, err := s.Find(99)
	require.NoError(t, err)
	require.Nil(t, data)

	// Block 2 is the middle of the chain, not a record head.
	_, err = s.CreateBytes(pattern(200))
	require.NoError(t, err)
	data, err = s.Find(2)
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestFind_DeletedRecord(t *testing.T) {
	s, _ := newTestStorage(t, smallParams)

	id, err := s.CreateBytes(pattern(50))
	require.NoError(t, err)
	require.NoError(t, s.Delete(id))

	data, err := s.Find(id)
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestUpdate_ShrinkThenGrow(t *testing.T) {
	s, stream := newTestStorage(t, smallParams)

	id, err := s.CreateBytes(pattern(1000))
	require.NoError(t, err)

	sizeAfterCreate, err := stream.Size()
	require.NoError(t, err)

	short := bytes.Repeat([]byte{0x11}, 100)
	require.NoError(t, s.Update(id, short))

	got, err := s.Find(id)
	require.NoError(t, err)
	require.Equal(t, short, got)

	long := pattern(900)
	require.NoError(t, s.Update(id, long))

	got, err = s.Find(id)
	require.NoError(t, err)
	require.Equal(t, long, got)

	// Growing back reuses the blocks freed by the shrink; the file does
	// not grow.
	sizeAfterUpdates, err := stream.Size()
	require.NoError(t, err)
	require.Equal(t, sizeAfterCreate, sizeAfterUpdates)
}

func TestUpdate_PreservesHeadID(t *testing.T) {
	s, _ := newTestStorage(t, smallParams)

	id, err := s.CreateBytes(pattern(500))
	require.NoError(t, err)

	require.NoError(t, s.Update(id, pattern(10)))
	require.NoError(t, s.Update(id, pattern(700)))

	got, err := s.Find(id)
	require.NoError(t, err)
	require.Equal(t, pattern(700), got)
}

func TestUpdate_MissingRecord(t *testing.T) {
	s, _ := newTestStorage(t, smallParams)

	err := s.Update(42, []byte("nope"))
	require.ErrorIs(t, err, utils.ErrNotFound)
}

func TestUpdate_ReservedRecord(t *testing.T) {
	s, _ := newTestStorage(t, smallParams)

	require.Error(t, s.Update(FreeListRecordID, []byte("no")))
	require.Error(t, s.Delete(FreeListRecordID))
}

func TestDelete_FreesAllBlocks(t *testing.T) {
	s, stream := newTestStorage(t, smallParams)

	id, err := s.CreateBytes(pattern(1000))
	require.NoError(t, err)
	require.NoError(t, s.Delete(id))

	// 13 freed ids, 4 bytes each, all fit in the free record's block 0.
	freeHead := stream.Bytes()[:smallParams.BlockSize]
	require.Equal(t, int64(52), utils.Int64(freeHead[block.HeaderBlockContentLength*8:]))
}

func TestDelete_ReuseIsLIFO(t *testing.T) {
	s, stream := newTestStorage(t, smallParams)

	id, err := s.CreateBytes(pattern(1000))
	require.NoError(t, err)
	require.Equal(t, uint32(1), id)
	require.NoError(t, s.Delete(id))

	sizeAfterDelete, err := stream.Size()
	require.NoError(t, err)

	// Chain blocks 1..13 were pushed in chain order, so the next create
	// pops 13 first: it becomes the new head.
	id2, err := s.CreateBytes(pattern(1000))
	require.NoError(t, err)
	require.Equal(t, uint32(13), id2)

	got, err := s.Find(id2)
	require.NoError(t, err)
	require.Equal(t, pattern(1000), got)

	// Everything was reused; the file did not grow.
	size, err := stream.Size()
	require.NoError(t, err)
	require.Equal(t, sizeAfterDelete, size)
}

func TestDelete_CreateDeleteCyclesDoNotLeak(t *testing.T) {
	s, stream := newTestStorage(t, smallParams)

	var peak int64
	for i := 0; i < 10; i++ {
		id, err := s.CreateBytes(pattern(400))
		require.NoError(t, err)
		size, err := stream.Size()
		require.NoError(t, err)
		if i == 0 {
			peak = size
		}
		require.Equal(t, peak, size)
		require.NoError(t, s.Delete(id))
	}
}

func TestCreate_OversizePayload(t *testing.T) {
	s, _ := newTestStorage(t, block.DefaultParams())

	_, err := s.CreateBytes(make([]byte, MaxRecordSize+1))
	require.Error(t, err)
}
