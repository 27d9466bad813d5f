package bufpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassOf(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 0},
		{1, 0},
		{64, 0},
		{65, 1},
		{128, 1},
		{129, 2},
		{1 << 20, numClasses - 1},
		{1<<20 + 1, -1},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, classOf(tt.n), "n=%d", tt.n)
	}
}

func TestGetPut(t *testing.T) {
	b := Get(100)
	require.GreaterOrEqual(t, len(*b), 100)
	require.Equal(t, 128, cap(*b))
	Put(b)

	big := Get(2 << 20)
	require.Len(t, *big, 2<<20)
	Put(big) // dropped
}

func TestPutIgnoresForeignSlices(t *testing.T) {
	b := make([]byte, 100)
	Put(&b)
}
