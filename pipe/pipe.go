package pipe

import (
	"errors"
	"io"
	"net"
	"sync"
)

// ErrClosed completes both sides of a pipe closed with Close.
var ErrClosed = errors.New("pipe: closed")

// Options controls buffering of a Pipe.
type Options struct {
	// SegmentSize is the size of a single transport read.
	SegmentSize int

	// PauseThreshold is the number of buffered bytes at which the inbound
	// pump stops reading and Flush starts blocking.
	PauseThreshold int

	// ResumeThreshold is the number of buffered bytes under which a paused
	// side resumes.
	ResumeThreshold int
}

// DefaultOptions derives options from a buffer size: segments of half the
// buffer, pause at the full buffer, resume at half.
func DefaultOptions(bufferSize int) Options {
	if bufferSize < 2 {
		bufferSize = 2
	}
	return Options{
		SegmentSize:     bufferSize / 2,
		PauseThreshold:  bufferSize,
		ResumeThreshold: bufferSize / 2,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions(1024)
	if o.SegmentSize <= 0 {
		o.SegmentSize = d.SegmentSize
	}
	if o.PauseThreshold <= 0 {
		o.PauseThreshold = d.PauseThreshold
	}
	if o.ResumeThreshold <= 0 || o.ResumeThreshold > o.PauseThreshold {
		o.ResumeThreshold = o.PauseThreshold / 2
	}
	return o
}

// Pipe exposes a byte transport as an inbound Reader and an outbound Writer,
// each fed by its own pump goroutine. Pumps start on first use of their side.
//
// A failure of either pump completes both sides with the same error, so a
// write failure is observed by the next read and the other way around.
type Pipe struct {
	in  *Reader
	out *Writer

	read  func([]byte) (int, error)
	write func([][]byte) error
	close func() error

	readOnce  sync.Once
	writeOnce sync.Once
	closeOnce sync.Once
	pumps     sync.WaitGroup
}

// NewSocketPipe returns a pipe pumping a network connection directly.
// Outbound segments are sent with vectored writes.
func NewSocketPipe(conn net.Conn, opts Options) *Pipe {
	return newPipe(
		conn.Read,
		func(segments [][]byte) error {
			bufs := net.Buffers(segments)
			_, err := bufs.WriteTo(conn)
			return err
		},
		conn.Close,
		opts,
	)
}

// NewStreamPipe returns a pipe pumping a generic stream, such as a TLS
// connection or a buffered wrapper. Streams with a Flush method are flushed
// after each batch of segments.
//
// Close closes closer, or the stream itself when closer is nil and the
// stream implements io.Closer. Closing must unblock a pending stream read.
func NewStreamPipe(stream io.ReadWriter, closer io.Closer, opts Options) *Pipe {
	closeFn := func() error { return nil }
	if closer == nil {
		closer, _ = stream.(io.Closer)
	}
	if closer != nil {
		closeFn = closer.Close
	}

	return newPipe(
		stream.Read,
		func(segments [][]byte) error {
			for _, b := range segments {
				if _, err := stream.Write(b); err != nil {
					return err
				}
			}
			if f, ok := stream.(interface{ Flush() error }); ok {
				return f.Flush()
			}
			return nil
		},
		closeFn,
		opts,
	)
}

func newPipe(read func([]byte) (int, error), write func([][]byte) error, closeFn func() error, opts Options) *Pipe {
	opts = opts.withDefaults()
	p := &Pipe{read: read, write: write, close: closeFn}
	p.in = newReader(opts, p.startReading)
	p.out = newWriter(opts, p.startWriting)
	return p
}

// Input returns the inbound side.
func (p *Pipe) Input() *Reader {
	return p.in
}

// Output returns the outbound side.
func (p *Pipe) Output() *Writer {
	return p.out
}

// Err returns the completion error of the pipe, or nil while both sides
// are running.
func (p *Pipe) Err() error {
	if err := p.in.completion(); err != nil {
		return err
	}
	return p.out.completion()
}

// Close completes both sides with ErrClosed, closes the transport and waits
// for running pumps to exit. It is safe to call more than once and on a
// transport that already failed.
func (p *Pipe) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.complete(ErrClosed)
		err = p.close()
		p.pumps.Wait()
	})
	return err
}

func (p *Pipe) complete(err error) {
	p.in.complete(err)
	p.out.complete(err)
}

func (p *Pipe) startReading() {
	p.readOnce.Do(func() {
		if p.in.completion() != nil {
			return
		}
		p.pumps.Add(1)
		go func() {
			defer p.pumps.Done()
			p.readLoop()
		}()
	})
}

func (p *Pipe) startWriting() {
	p.writeOnce.Do(func() {
		if p.out.completion() != nil {
			return
		}
		p.pumps.Add(1)
		go func() {
			defer p.pumps.Done()
			p.writeLoop()
		}()
	})
}

func (p *Pipe) readLoop() {
	segment := make([]byte, p.in.opts.SegmentSize)
	for {
		if !p.in.waitForSpace() {
			return
		}

		n, err := p.read(segment)
		if n > 0 {
			p.in.push(segment[:n])
		}
		if err != nil {
			p.complete(err)
			return
		}
	}
}

func (p *Pipe) writeLoop() {
	for {
		segments, ok := p.out.take()
		if !ok {
			return
		}

		n := 0
		for _, b := range segments {
			n += len(b)
		}

		// The socket pump's vectored write consumes the segments slice.
		err := p.write(segments)
		p.out.written(n)
		if err != nil {
			p.complete(err)
			return
		}
	}
}

// signal wakes every goroutine waiting on the current channel. Callers hold
// the owner's lock for both wait and broadcast.
type signal struct {
	ch chan struct{}
}

func (s *signal) wait() <-chan struct{} {
	if s.ch == nil {
		s.ch = make(chan struct{})
	}
	return s.ch
}

func (s *signal) broadcast() {
	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
}
