package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func TestBinarySearch_Found(t *testing.T) {
	items := []int{1, 3, 5, 7, 9, 11}

	for i, v := range items {
		require.Equal(t, i, BinarySearch(items, v, cmpInt))
	}
}

func TestBinarySearch_NotFound(t *testing.T) {
	items := []int{10, 20, 30}

	tests := []struct {
		name   string
		probe  int
		insert int
	}{
		{name: "before all", probe: 5, insert: 0},
		{name: "between first pair", probe: 15, insert: 1},
		{name: "between second pair", probe: 25, insert: 2},
		{name: "after all", probe: 35, insert: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := BinarySearch(items, tt.probe, cmpInt)
			require.Negative(t, r)
			require.Equal(t, tt.insert, ^r)
		})
	}
}

func TestBinarySearch_Empty(t *testing.T) {
	r := BinarySearch(nil, 42, cmpInt)
	require.Equal(t, 0, ^r)
}

func TestBinarySearchBoundary_Duplicates(t *testing.T) {
	items := []int{1, 2, 2, 2, 3, 3, 5}

	require.Equal(t, 1, BinarySearchBoundary(items, 2, cmpInt, true))
	require.Equal(t, 3, BinarySearchBoundary(items, 2, cmpInt, false))
	require.Equal(t, 4, BinarySearchBoundary(items, 3, cmpInt, true))
	require.Equal(t, 5, BinarySearchBoundary(items, 3, cmpInt, false))
	require.Equal(t, 0, BinarySearchBoundary(items, 1, cmpInt, true))
	require.Equal(t, 6, BinarySearchBoundary(items, 5, cmpInt, false))
}

func TestBinarySearchBoundary_AllEqual(t *testing.T) {
	items := []int{7, 7, 7, 7}

	require.Equal(t, 0, BinarySearchBoundary(items, 7, cmpInt, true))
	require.Equal(t, 3, BinarySearchBoundary(items, 7, cmpInt, false))
}

func TestBinarySearchBoundary_Missing(t *testing.T) {
	items := []int{1, 2, 2, 4}

	r := BinarySearchBoundary(items, 3, cmpInt, true)
	require.Negative(t, r)
	require.Equal(t, 3, ^r)

	r = BinarySearchBoundary(items, 3, cmpInt, false)
	require.Negative(t, r)
	require.Equal(t, 3, ^r)
}
