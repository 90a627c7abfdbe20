package btree

import (
	"strings"
	"testing"

	"github.com/scigolib/pagedb/internal/block"
	"github.com/scigolib/pagedb/internal/record"
	"github.com/scigolib/pagedb/internal/testutil"
	"github.com/stretchr/testify/require"
)

func newStringTree(t *testing.T, stream *testutil.MemStream, unique bool) *Tree[string, uint32] {
	t.Helper()
	blocks, err := block.NewStorage(stream, testParams)
	require.NoError(t, err)
	records, err := record.NewStorage(blocks)
	require.NoError(t, err)
	serializer, err := NewNodeSerializer[string, uint32](stringCodec{}, Uint32Codec{})
	require.NoError(t, err)
	m, err := NewNodeManager(records, serializer, strings.Compare, 2)
	require.NoError(t, err)
	return NewTree(m, unique)
}

func TestStringTree_InsertGetScan(t *testing.T) {
	stream := testutil.NewMemStream()
	tree := newStringTree(t, stream, true)

	words := []string{"pear", "apple", "fig", "banana", "kiwi", "date", "grape", "mango", "plum"}
	for i, w := range words {
		require.NoError(t, tree.Insert(w, uint32(i))) //nolint:gosec // G115: small test indices
	}

	e, found, err := tree.Get("kiwi")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(4), e.Value)

	var got []string
	for entry, err := range tree.LargerThanOrEq("fig") {
		require.NoError(t, err)
		got = append(got, entry.Key)
	}
	require.Equal(t, []string{"fig", "grape", "kiwi", "mango", "pear", "plum"}, got)
}

func TestStringTree_SurvivesReopen(t *testing.T) {
	stream := testutil.NewMemStream()
	tree := newStringTree(t, stream, true)

	keys := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}
	for i, k := range keys {
		require.NoError(t, tree.Insert(k, uint32(i*10))) //nolint:gosec // G115: small test indices
	}

	reopened := newStringTree(t, stream, true)
	for i, k := range keys {
		e, found, err := reopened.Get(k)
		require.NoError(t, err)
		require.True(t, found, k)
		require.Equal(t, uint32(i*10), e.Value) //nolint:gosec // G115: small test indices
	}
}
