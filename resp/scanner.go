package resp

import (
	"bytes"
	"errors"
	"strconv"
)

// errIncomplete reports that buf holds a valid prefix of a frame.
var errIncomplete = errors.New("resp: incomplete frame")

// scan checks that buf starts with one complete, well-formed frame.
//
// On success it returns the frame length n. When buf only holds a prefix it
// returns errIncomplete and need, the smallest total buffer length worth
// retrying with. Any other error is a *ProtocolError.
//
// Nested arrays are walked iteratively: todo counts the frames still expected.
func scan(buf []byte) (n int, need int, err error) {
	pos := 0
	for todo := 1; todo > 0; todo-- {
		if pos >= len(buf) {
			return 0, pos + 1, errIncomplete
		}

		marker := buf[pos]
		line, next, err := readLine(buf, pos+1)
		if err != nil {
			if err == errIncomplete {
				return 0, len(buf) + 1, err
			}
			return 0, 0, err
		}

		switch marker {
		case MarkerSimpleString, MarkerError:
			pos = next

		case MarkerInteger:
			if _, err := parseInteger(line); err != nil {
				return 0, 0, err
			}
			pos = next

		case MarkerBulkString:
			size, err := parseLength(line, MaxBulkLength)
			if err != nil {
				return 0, 0, err
			}
			if size == NullLength {
				pos = next
				continue
			}
			end := next + size + len(CRLF)
			if end > len(buf) {
				return 0, end, errIncomplete
			}
			if buf[end-2] != '\r' || buf[end-1] != '\n' {
				return 0, 0, &ProtocolError{Message: "bulk string not terminated by CRLF"}
			}
			pos = end

		case MarkerArray:
			count, err := parseLength(line, MaxArrayLength)
			if err != nil {
				return 0, 0, err
			}
			if count > 0 {
				todo += count
			}
			pos = next

		default:
			return 0, 0, &ProtocolError{Message: "unknown type marker " + strconv.QuoteRune(rune(marker))}
		}
	}
	return pos, 0, nil
}

// readLine returns the control line starting at start, without its CRLF, and
// the offset just past the CRLF.
func readLine(buf []byte, start int) ([]byte, int, error) {
	if start > len(buf) {
		return nil, 0, errIncomplete
	}
	i := bytes.IndexByte(buf[start:], '\n')
	if i < 0 {
		return nil, 0, errIncomplete
	}
	end := start + i
	if i == 0 || buf[end-1] != '\r' {
		return nil, 0, &ProtocolError{Message: "line not terminated by CRLF"}
	}
	return buf[start : end-1], end + 1, nil
}

// parseLength parses a bulk or array length header. Only decimal digits are
// accepted, plus the literal -1 meaning null.
func parseLength(line []byte, limit int) (int, error) {
	if len(line) == 2 && line[0] == '-' && line[1] == '1' {
		return NullLength, nil
	}
	if len(line) == 0 || len(line) > 10 {
		return 0, &ProtocolError{Message: "invalid length " + strconv.Quote(string(line))}
	}
	n := 0
	for _, c := range line {
		if c < '0' || c > '9' {
			return 0, &ProtocolError{Message: "invalid length " + strconv.Quote(string(line))}
		}
		n = n*10 + int(c-'0')
	}
	if n > limit {
		return 0, &ProtocolError{Message: "length " + strconv.Itoa(n) + " exceeds limit"}
	}
	return n, nil
}

func parseInteger(line []byte) (int64, error) {
	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0, &ProtocolError{Message: "invalid integer " + strconv.Quote(string(line)), Err: err}
	}
	return n, nil
}

// parseError splits an error line on its first space into type and message.
// A line without a space gets GenericErrorType and keeps the whole line as
// the message.
func parseError(line []byte) (string, string) {
	i := bytes.IndexByte(line, ' ')
	if i < 0 {
		return GenericErrorType, string(line)
	}
	return string(line[:i]), string(line[i+1:])
}
