package redis

import (
	"context"
	"fmt"

	"github.com/pior/redis/resp"
)

// Command is a request and the function extracting its typed result from
// the reply. Commands are immutable values; build one per call.
//
// Result never receives an error frame: those are turned into *ServerError
// before it runs.
type Command[T any] struct {
	Args   []resp.Value
	Result func(resp.Value) (T, error)
}

// NewCommand builds a command from its name and arguments.
func NewCommand[T any](result func(resp.Value) (T, error), name string, args ...resp.Value) Command[T] {
	full := make([]resp.Value, 0, len(args)+1)
	full = append(full, resp.BulkStringFromString(name))
	full = append(full, args...)
	return Command[T]{Args: full, Result: result}
}

// Name returns the command name.
func (c Command[T]) Name() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0].Text()
}

// Executor runs a request and returns its reply. Error replies are returned
// as *ServerError. Client implements it.
type Executor interface {
	Execute(ctx context.Context, args []resp.Value, bufs resp.BufferPool) (resp.Value, error)
}

// Execute runs cmd on e and extracts its result.
func Execute[T any](ctx context.Context, e Executor, cmd Command[T]) (T, error) {
	v, err := e.Execute(ctx, cmd.Args, nil)
	if err != nil {
		var zero T
		return zero, err
	}
	return cmd.Result(v)
}

// errUnexpectedReply describes a reply that does not fit the command.
func errUnexpectedReply(v resp.Value) error {
	return fmt.Errorf("redis: unexpected reply %s: %w", v, resp.ErrUnexpectedKind)
}

// Result extractors.

// ValueResult returns the reply unchanged.
func ValueResult(v resp.Value) (resp.Value, error) {
	return v, nil
}

// StatusResult accepts a simple string reply and returns its text.
func StatusResult(v resp.Value) (string, error) {
	if v.Kind() != resp.KindSimpleString {
		return "", errUnexpectedReply(v)
	}
	return v.Text(), nil
}

// OKResult reports whether the reply is OK. A null reply, returned when a
// conditional write was not applied, is false.
func OKResult(v resp.Value) (bool, error) {
	switch {
	case v.IsNull():
		return false, nil
	case v.Kind() == resp.KindSimpleString && v.Text() == "OK":
		return true, nil
	}
	return false, errUnexpectedReply(v)
}

// IntResult accepts an integer reply.
func IntResult(v resp.Value) (int64, error) {
	if v.Kind() != resp.KindInteger {
		return 0, errUnexpectedReply(v)
	}
	return v.Int(), nil
}

// BoolResult accepts an integer reply, true when non-zero.
func BoolResult(v resp.Value) (bool, error) {
	n, err := IntResult(v)
	return n != 0, err
}

// OptionalResult converts a reply to T, with null being Unspecified.
func OptionalResult[T resp.Scalar](v resp.Value) (Optional[T], error) {
	if v.IsNull() {
		return Unspecified[T](), nil
	}
	x, err := resp.As[T](v)
	if err != nil {
		return Optional[T]{}, err
	}
	return Some(x), nil
}

// ScalarResult converts a reply to T. Null is an error.
func ScalarResult[T resp.Scalar](v resp.Value) (T, error) {
	return resp.As[T](v)
}

// ArrayResult converts every element of an array reply to T. A null array
// is an empty slice.
func ArrayResult[T resp.Scalar](v resp.Value) ([]T, error) {
	if v.IsNull() {
		return []T{}, nil
	}
	if v.Kind() != resp.KindArray {
		return nil, errUnexpectedReply(v)
	}
	out := make([]T, v.Len())
	for i, item := range v.Items() {
		x, err := resp.As[T](item)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

// MapResult converts a flat array of field/value pairs to a map.
func MapResult[T resp.Scalar](v resp.Value) (map[string]T, error) {
	if v.Kind() != resp.KindArray || v.Len()%2 != 0 {
		return nil, errUnexpectedReply(v)
	}
	items := v.Items()
	out := make(map[string]T, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		x, err := resp.As[T](items[i+1])
		if err != nil {
			return nil, err
		}
		out[items[i].Text()] = x
	}
	return out, nil
}
