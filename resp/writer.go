package resp

import (
	"bytes"
	"io"
	"strconv"
	"sync"
)

// Buffer pool for encoding frames
var bufferPool = sync.Pool{
	New: func() any {
		// Typical command is well under 256 bytes
		return bytes.NewBuffer(make([]byte, 0, 256))
	},
}

func getBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func putBuffer(buf *bytes.Buffer) {
	// Large payloads would pin memory in the pool
	if buf.Cap() > 64*1024 {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// Write encodes v and writes it to w in a single Write call.
//
// Simple strings and error values containing CR or LF are rejected with
// ErrInvalidSimpleString before anything is written.
func Write(w io.Writer, v Value) error {
	buf := getBuffer()
	defer putBuffer(buf)

	b, err := AppendValue(buf.AvailableBuffer(), v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// WriteCommand encodes a request, an array of bulk strings, and writes it to
// w. Non bulk-string arguments are encoded as they are.
func WriteCommand(w io.Writer, args []Value) error {
	return Write(w, Value{kind: KindArray, array: args})
}

// AppendValue appends the wire encoding of v to dst.
//
// Format by kind:
//
//	Null:          $-1\r\n
//	Integer:       :<n>\r\n
//	SimpleString:  +<text>\r\n
//	BulkString:    $<len>\r\n<bytes>\r\n
//	Array:         *<count>\r\n<items...>
//	Error:         -<type> <message>\r\n
func AppendValue(dst []byte, v Value) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(dst, nullBulk...), nil

	case KindInteger:
		dst = append(dst, MarkerInteger)
		dst = strconv.AppendInt(dst, v.integer, 10)
		return append(dst, crlfBytes...), nil

	case KindSimpleString:
		if hasLineBreak(v.str) {
			return dst, ErrInvalidSimpleString
		}
		dst = append(dst, MarkerSimpleString)
		dst = append(dst, v.str...)
		return append(dst, crlfBytes...), nil

	case KindBulkString:
		dst = appendHeader(dst, MarkerBulkString, len(v.str))
		dst = append(dst, v.str...)
		return append(dst, crlfBytes...), nil

	case KindError:
		if hasLineBreak(v.str) || hasLineBreak([]byte(v.errType)) {
			return dst, ErrInvalidSimpleString
		}
		dst = append(dst, MarkerError)
		dst = append(dst, v.errType...)
		dst = append(dst, Space...)
		dst = append(dst, v.str...)
		return append(dst, crlfBytes...), nil

	case KindArray:
		dst = appendHeader(dst, MarkerArray, len(v.array))
		var err error
		for _, item := range v.array {
			if dst, err = AppendValue(dst, item); err != nil {
				return dst, err
			}
		}
		return dst, nil
	}

	return dst, &ProtocolError{Message: "cannot encode " + v.kind.String()}
}

func appendHeader(dst []byte, marker byte, n int) []byte {
	dst = append(dst, marker)
	dst = strconv.AppendInt(dst, int64(n), 10)
	return append(dst, crlfBytes...)
}

func hasLineBreak(b []byte) bool {
	return bytes.IndexByte(b, '\r') >= 0 || bytes.IndexByte(b, '\n') >= 0
}
