package pipe

import (
	"context"
	"sync"
)

// Writer is the outbound side of a Pipe. Writes accumulate in a pending
// segment; Flush hands it to the pump.
type Writer struct {
	opts  Options
	start func()

	mu      sync.Mutex
	pending []byte
	queued  [][]byte
	inQueue int // bytes queued or being written
	err     error
	signal  signal
}

func newWriter(opts Options, start func()) *Writer {
	return &Writer{opts: opts, start: start}
}

// Write appends p to the pending segment. It fails only once the pipe has
// completed.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return 0, w.err
	}
	w.pending = append(w.pending, p...)
	return len(p), nil
}

// WriteString appends s to the pending segment.
func (w *Writer) WriteString(s string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return 0, w.err
	}
	w.pending = append(w.pending, s...)
	return len(s), nil
}

// Flush queues the pending segment for the pump. When the queue is above the
// pause threshold, Flush blocks until it drains under the resume threshold.
//
// Flush returns the completion error of the pipe, if any.
func (w *Writer) Flush(ctx context.Context) error {
	w.start()

	w.mu.Lock()
	if w.err != nil {
		err := w.err
		w.mu.Unlock()
		return err
	}

	if len(w.pending) > 0 {
		w.queued = append(w.queued, w.pending)
		w.inQueue += len(w.pending)
		w.pending = nil
		w.signal.broadcast()
	}

	if w.inQueue < w.opts.PauseThreshold {
		w.mu.Unlock()
		return nil
	}

	for w.inQueue > w.opts.ResumeThreshold && w.err == nil {
		wait := w.signal.wait()
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
		w.mu.Lock()
	}
	err := w.err
	w.mu.Unlock()
	return err
}

// Queued returns the number of flushed bytes not yet written to the
// transport.
func (w *Writer) Queued() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inQueue
}

// take blocks until segments are queued and returns them. It returns false
// once the pipe completed.
func (w *Writer) take() ([][]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.queued) == 0 {
		if w.err != nil {
			return nil, false
		}
		wait := w.signal.wait()
		w.mu.Unlock()
		<-wait
		w.mu.Lock()
	}

	if w.err != nil {
		return nil, false
	}
	segments := w.queued
	w.queued = nil
	return segments, true
}

func (w *Writer) written(n int) {
	w.mu.Lock()
	w.inQueue -= n
	w.signal.broadcast()
	w.mu.Unlock()
}

func (w *Writer) complete(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.signal.broadcast()
	w.mu.Unlock()
}

func (w *Writer) completion() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
