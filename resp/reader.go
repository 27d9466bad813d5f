package resp

import (
	"context"
	"errors"
	"io"
)

// Source is a peekable byte stream. pipe.Reader implements it.
//
// Read blocks until at least min unconsumed bytes are buffered and returns all
// of them without consuming anything. When the stream has completed it
// returns whatever is still buffered together with the completion error
// (io.EOF for a clean close). Advance consumes n bytes from the front.
type Source interface {
	Read(ctx context.Context, min int) ([]byte, error)
	Advance(n int)
}

// Read decodes exactly one frame from src.
//
// Nothing is consumed from src until a complete frame has been scanned, so a
// read abandoned through ctx leaves the stream positioned at the same frame
// boundary. Bulk, simple string and error payloads are copied into buffers
// rented from bufs; a nil bufs allocates from the heap.
//
// Errors:
//   - *ProtocolError: malformed frame
//   - io.EOF: the stream ended cleanly before any byte of the frame
//   - io.ErrUnexpectedEOF: the stream ended inside a frame
//   - ctx.Err(): cancelled while waiting for data
//   - any other completion error of src, unchanged
func Read(ctx context.Context, src Source, bufs BufferPool) (Value, error) {
	if bufs == nil {
		bufs = HeapBuffers{}
	}

	need := 1
	for {
		data, readErr := src.Read(ctx, need)

		if len(data) >= need {
			n, more, err := scan(data)
			switch {
			case err == nil:
				v, _ := materialize(data[:n], 0, bufs)
				src.Advance(n)
				return v, nil
			case errors.Is(err, errIncomplete):
				need = more
			default:
				return Value{}, err
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if len(data) == 0 {
					return Value{}, io.EOF
				}
				return Value{}, io.ErrUnexpectedEOF
			}
			return Value{}, readErr
		}
	}
}

// materialize builds the Value for a frame already validated by scan. It
// returns the offset just past the frame.
func materialize(buf []byte, pos int, bufs BufferPool) (Value, int) {
	marker := buf[pos]
	line, next, _ := readLine(buf, pos+1)

	switch marker {
	case MarkerSimpleString:
		return Value{kind: KindSimpleString, str: clone(line, bufs)}, next

	case MarkerError:
		typ, msg := parseError(line)
		return Error(typ, msg), next

	case MarkerInteger:
		n, _ := parseInteger(line)
		return Integer(n), next

	case MarkerBulkString:
		size, _ := parseLength(line, MaxBulkLength)
		if size == NullLength {
			return Null(), next
		}
		return Value{kind: KindBulkString, str: clone(buf[next:next+size], bufs)}, next + size + len(CRLF)

	case MarkerArray:
		count, _ := parseLength(line, MaxArrayLength)
		if count == NullLength {
			return Null(), next
		}
		items := make([]Value, count)
		for i := range items {
			items[i], next = materialize(buf, next, bufs)
		}
		return Value{kind: KindArray, array: items}, next
	}

	return Value{}, next
}

func clone(b []byte, bufs BufferPool) []byte {
	out := bufs.Rent(len(b))
	copy(out, b)
	return out
}
