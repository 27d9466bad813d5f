package resp

import (
	"fmt"
	"strconv"
)

// Scalar lists the Go types with a direct protocol representation.
type Scalar interface {
	string | []byte | int | int64 | float64 | bool
}

// ValueOf encodes x as a bulk string argument. Numbers use their shortest
// decimal form; booleans become "1" and "0".
func ValueOf[T Scalar](x T) Value {
	switch v := any(x).(type) {
	case string:
		return BulkStringFromString(v)
	case []byte:
		return BulkString(v)
	case int:
		return Value{kind: KindBulkString, str: strconv.AppendInt(nil, int64(v), 10)}
	case int64:
		return Value{kind: KindBulkString, str: strconv.AppendInt(nil, v, 10)}
	case float64:
		return Value{kind: KindBulkString, str: strconv.AppendFloat(nil, v, 'f', -1, 64)}
	case bool:
		if v {
			return BulkStringFromString("1")
		}
		return BulkStringFromString("0")
	}
	panic("unreachable")
}

// As converts a reply frame to T.
//
// Integers convert to numbers and to their decimal text; simple and bulk
// strings convert to text and are parsed for numeric and bool targets. Null
// returns ErrNil and error frames are reported as themselves.
func As[T Scalar](v Value) (T, error) {
	var zero T
	switch v.kind {
	case KindNull:
		return zero, ErrNil
	case KindError:
		return zero, fmt.Errorf("%w: %s %s", ErrUnexpectedKind, v.errType, v.str)
	case KindArray:
		return zero, fmt.Errorf("%w: %s", ErrUnexpectedKind, v.kind)
	}

	var out any
	switch any(zero).(type) {
	case string:
		out = v.text()
	case []byte:
		out = v.bytes()
	case int:
		n, err := v.int64()
		if err != nil {
			return zero, err
		}
		out = int(n)
	case int64:
		n, err := v.int64()
		if err != nil {
			return zero, err
		}
		out = n
	case float64:
		if v.kind == KindInteger {
			out = float64(v.integer)
			break
		}
		f, err := strconv.ParseFloat(string(v.str), 64)
		if err != nil {
			return zero, fmt.Errorf("%w: %v", ErrUnexpectedKind, err)
		}
		out = f
	case bool:
		n, err := v.int64()
		if err != nil {
			return zero, err
		}
		out = n != 0
	}
	return out.(T), nil
}

func (v Value) text() string {
	if v.kind == KindInteger {
		return strconv.FormatInt(v.integer, 10)
	}
	return string(v.str)
}

func (v Value) bytes() []byte {
	if v.kind == KindInteger {
		return strconv.AppendInt(nil, v.integer, 10)
	}
	return v.str
}

func (v Value) int64() (int64, error) {
	if v.kind == KindInteger {
		return v.integer, nil
	}
	n, err := strconv.ParseInt(string(v.str), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnexpectedKind, err)
	}
	return n, nil
}
