// Package bufpool provides size-classed pools of byte slices.
package bufpool

import (
	"math/bits"
	"sync"
)

const (
	minClassBits = 6  // 64 bytes
	maxClassBits = 20 // 1 MiB
	numClasses   = maxClassBits - minClassBits + 1
)

var classes [numClasses]sync.Pool

func init() {
	for i := range classes {
		size := 1 << (minClassBits + i)
		classes[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
}

// classOf returns the index of the smallest class holding n bytes, or -1 when
// n is above the largest class.
func classOf(n int) int {
	if n <= 1<<minClassBits {
		return 0
	}
	c := bits.Len(uint(n-1)) - minClassBits
	if c >= numClasses {
		return -1
	}
	return c
}

// Get returns a slice with capacity and length of at least n.
// Slices above the largest class are allocated and never pooled.
func Get(n int) *[]byte {
	c := classOf(n)
	if c < 0 {
		b := make([]byte, n)
		return &b
	}
	b := classes[c].Get().(*[]byte)
	*b = (*b)[:cap(*b)]
	return b
}

// Put returns b to its pool. Slices whose capacity is not a class size are
// dropped.
func Put(b *[]byte) {
	size := cap(*b)
	if size < 1<<minClassBits || size&(size-1) != 0 {
		return
	}
	c := bits.Len(uint(size)) - 1 - minClassBits
	if c >= numClasses {
		return
	}
	classes[c].Put(b)
}
