package pipe

import (
	"context"
	"sync"
)

// Reader is the inbound side of a Pipe. It buffers everything the pump
// received and lets a single consumer peek at it and consume it.
//
// Reader implements resp.Source.
type Reader struct {
	opts  Options
	start func()

	mu     sync.Mutex
	buf    []byte // unconsumed data is buf[off:]
	off    int
	want   int
	paused bool
	err    error
	signal signal
}

func newReader(opts Options, start func()) *Reader {
	return &Reader{opts: opts, start: start}
}

// Read blocks until at least min unconsumed bytes are buffered and returns
// them all without consuming them. Once the pipe has completed, it returns
// what is left along with the completion error.
//
// The returned slice is valid until the next Advance.
// Cancelling ctx returns ctx.Err() and leaves the buffer untouched.
func (r *Reader) Read(ctx context.Context, min int) ([]byte, error) {
	r.start()

	r.mu.Lock()
	for {
		buffered := len(r.buf) - r.off
		if buffered >= min && buffered > 0 || min <= 0 {
			r.want = 0
			data := r.buf[r.off:]
			r.mu.Unlock()
			return data, nil
		}
		if r.err != nil {
			data := r.buf[r.off:]
			err := r.err
			r.mu.Unlock()
			return data, err
		}

		if min > r.want {
			r.want = min
			r.signal.broadcast() // a paused pump must make room for min
		}
		wait := r.signal.wait()
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.want = 0
			r.mu.Unlock()
			return nil, ctx.Err()
		case <-wait:
		}
		r.mu.Lock()
	}
}

// Advance consumes n bytes returned by the previous Read.
func (r *Reader) Advance(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.off += n
	switch {
	case r.off >= len(r.buf):
		r.buf = r.buf[:0]
		r.off = 0
	case r.off > cap(r.buf)/2:
		m := copy(r.buf, r.buf[r.off:])
		r.buf = r.buf[:m]
		r.off = 0
	}
	r.signal.broadcast()
}

// Buffered returns the number of unconsumed bytes.
func (r *Reader) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf) - r.off
}

func (r *Reader) push(data []byte) {
	r.mu.Lock()
	r.buf = append(r.buf, data...)
	r.signal.broadcast()
	r.mu.Unlock()
}

// waitForSpace blocks the pump while the buffer is above the pause threshold
// and no reader needs more data. It returns false once the pipe completed.
func (r *Reader) waitForSpace() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if r.err != nil {
			return false
		}

		buffered := len(r.buf) - r.off
		if buffered >= r.opts.PauseThreshold {
			r.paused = true
		}
		if r.paused && (buffered <= r.opts.ResumeThreshold || r.want > buffered) {
			r.paused = false
		}
		if !r.paused {
			return true
		}

		wait := r.signal.wait()
		r.mu.Unlock()
		<-wait
		r.mu.Lock()
	}
}

func (r *Reader) complete(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.signal.broadcast()
	r.mu.Unlock()
}

func (r *Reader) completion() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
