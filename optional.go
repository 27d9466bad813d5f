package redis

import "fmt"

// Optional is a value that may be unspecified, such as the reply to GET on a
// missing key. It is distinct from a present zero value.
//
// Optional values are comparable when T is.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns a present value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// Unspecified returns an absent value.
func Unspecified[T any]() Optional[T] {
	return Optional[T]{}
}

// HasValue reports whether the value is present.
func (o Optional[T]) HasValue() bool {
	return o.ok
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Value returns the value, or the zero value of T when unspecified.
func (o Optional[T]) Value() T {
	return o.value
}

// OrElse returns the value, or def when unspecified.
func (o Optional[T]) OrElse(def T) T {
	if o.ok {
		return o.value
	}
	return def
}

func (o Optional[T]) String() string {
	if !o.ok {
		return "Unspecified"
	}
	if b, ok := any(o.value).([]byte); ok {
		return fmt.Sprintf("Some(%q)", b)
	}
	return fmt.Sprintf("Some(%v)", o.value)
}
