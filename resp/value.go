package resp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindSimpleString
	KindBulkString
	KindArray
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindSimpleString:
		return "simple-string"
	case KindBulkString:
		return "bulk-string"
	case KindArray:
		return "array"
	case KindError:
		return "error"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is one protocol frame: a tagged union of null, integer, simple
// string, bulk string, array and error.
//
// The zero Value is Null. Values are immutable once built; bulk payloads may
// live in a buffer rented from a BufferPool, in which case they are only valid
// until that pool is released.
type Value struct {
	kind    Kind
	integer int64
	str     []byte
	errType string
	array   []Value
}

// Null returns the null value.
func Null() Value {
	return Value{}
}

// Integer returns an integer value.
func Integer(n int64) Value {
	return Value{kind: KindInteger, integer: n}
}

// SimpleString returns a simple string value. The text must not contain CR
// or LF; Write rejects it otherwise.
func SimpleString(s string) Value {
	return Value{kind: KindSimpleString, str: []byte(s)}
}

// BulkString returns a bulk string value referencing b without copying.
// A nil b is an empty bulk string, not null.
func BulkString(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{kind: KindBulkString, str: b}
}

// BulkStringFromString returns a bulk string value holding s.
func BulkStringFromString(s string) Value {
	return Value{kind: KindBulkString, str: []byte(s)}
}

// Array returns an array value holding items. A nil items is an empty array.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, array: items}
}

// Error returns an error value. An empty typ is replaced by GenericErrorType.
func Error(typ, message string) Value {
	if typ == "" {
		typ = GenericErrorType
	}
	return Value{kind: KindError, errType: typ, str: []byte(message)}
}

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsError reports whether v is an error value.
func (v Value) IsError() bool { return v.kind == KindError }

// Int returns the integer payload. It is zero for other kinds.
func (v Value) Int() int64 { return v.integer }

// Bytes returns the payload of a simple string, bulk string or error message.
func (v Value) Bytes() []byte { return v.str }

// Text returns the payload of a simple string, bulk string or error message
// as a string.
func (v Value) Text() string { return string(v.str) }

// Items returns the elements of an array.
func (v Value) Items() []Value { return v.array }

// Len returns the element count of an array or the byte length of a string.
func (v Value) Len() int {
	if v.kind == KindArray {
		return len(v.array)
	}
	return len(v.str)
}

// ErrorType returns the type tag of an error value.
func (v Value) ErrorType() string { return v.errType }

// ErrorMessage returns the message of an error value.
func (v Value) ErrorMessage() string { return string(v.str) }

// Equal reports whether v and other are structurally identical.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInteger:
		return v.integer == other.integer
	case KindSimpleString, KindBulkString:
		return bytes.Equal(v.str, other.str)
	case KindError:
		return v.errType == other.errType && bytes.Equal(v.str, other.str)
	case KindArray:
		if len(v.array) != len(other.array) {
			return false
		}
		for i := range v.array {
			if !v.array[i].Equal(other.array[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v for debugging, in the style of redis-cli.
func (v Value) String() string {
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

func (v Value) format(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("(nil)")
	case KindInteger:
		sb.WriteString("(integer) ")
		sb.WriteString(strconv.FormatInt(v.integer, 10))
	case KindSimpleString:
		sb.Write(v.str)
	case KindBulkString:
		sb.WriteString(strconv.Quote(string(v.str)))
	case KindError:
		fmt.Fprintf(sb, "(error) %s %s", v.errType, v.str)
	case KindArray:
		sb.WriteByte('[')
		for i, item := range v.array {
			if i > 0 {
				sb.WriteString(", ")
			}
			item.format(sb)
		}
		sb.WriteByte(']')
	}
}
