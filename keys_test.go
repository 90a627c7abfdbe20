package pagedb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareRowIDs(t *testing.T) {
	require.Equal(t, 0, compareRowIDs(rowID(1), rowID(1)))
	require.Negative(t, compareRowIDs(rowID(1), rowID(2)))
	require.Positive(t, compareRowIDs(rowID(2), rowID(1)))

	var high RowID
	high[0] = 1
	require.Positive(t, compareRowIDs(high, rowID(0xFF)))
}

func TestCompareCompositeKeys(t *testing.T) {
	tests := []struct {
		name string
		a, b CompositeKey
		want int
	}{
		{name: "equal", a: CompositeKey{"US", 30}, b: CompositeKey{"US", 30}, want: 0},
		{name: "nationality first", a: CompositeKey{"DE", 99}, b: CompositeKey{"US", 1}, want: -1},
		{name: "age breaks ties", a: CompositeKey{"US", 30}, b: CompositeKey{"US", 31}, want: -1},
		{name: "negative ages order", a: CompositeKey{"US", -5}, b: CompositeKey{"US", 0}, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, compareCompositeKeys(tt.a, tt.b))
			require.Equal(t, -tt.want, compareCompositeKeys(tt.b, tt.a))
		})
	}
}

func TestRowIDCodec_RoundTrip(t *testing.T) {
	var codec rowIDCodec
	id := RowID{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

	data, err := codec.Marshal(id)
	require.NoError(t, err)
	require.Len(t, data, 16)

	got, err := codec.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = codec.Unmarshal(data[:10])
	require.Error(t, err)
}

func TestCompositeKeyCodec_RoundTrip(t *testing.T) {
	var codec compositeKeyCodec

	tests := []CompositeKey{
		{Nationality: "US", Age: 30},
		{Nationality: "", Age: 0},
		{Nationality: "ÅLAND", Age: -17},
		{Nationality: "a very long nationality string", Age: 1 << 30},
	}

	for _, key := range tests {
		data, err := codec.Marshal(key)
		require.NoError(t, err)

		got, err := codec.Unmarshal(data)
		require.NoError(t, err)
		require.Equal(t, key, got)
	}

	_, err := codec.Unmarshal([]byte{1, 2})
	require.Error(t, err)
}
