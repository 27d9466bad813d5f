package resp

import (
	"context"
)

// chunkSource delivers its data in fixed chunks, one chunk per blocking
// wait, and completes with err once every chunk was delivered.
type chunkSource struct {
	chunks   [][]byte
	buffered []byte
	err      error
	reads    int
}

func newChunkSource(err error, chunks ...[]byte) *chunkSource {
	return &chunkSource{chunks: chunks, err: err}
}

func (s *chunkSource) Read(ctx context.Context, min int) ([]byte, error) {
	for len(s.buffered) < min {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(s.chunks) == 0 {
			return s.buffered, s.err
		}
		s.reads++
		s.buffered = append(s.buffered, s.chunks[0]...)
		s.chunks = s.chunks[1:]
	}
	return s.buffered, nil
}

func (s *chunkSource) Advance(n int) {
	s.buffered = s.buffered[n:]
}

// splitEvery returns data split into chunks of size n.
func splitEvery(data []byte, n int) [][]byte {
	var chunks [][]byte
	for len(data) > n {
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return append(chunks, data)
}

// splitAt returns data split into two chunks at i.
func splitAt(data []byte, i int) [][]byte {
	return [][]byte{data[:i], data[i:]}
}

func encode(v Value) []byte {
	b, err := AppendValue(nil, v)
	if err != nil {
		panic(err)
	}
	return b
}

var _ Source = (*chunkSource)(nil)
