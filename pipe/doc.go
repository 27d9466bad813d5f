// Package pipe decouples transport I/O from protocol framing.
//
// A Pipe owns two pump goroutines. The inbound pump copies transport reads
// into the Reader buffer; the outbound pump drains flushed Writer segments
// to the transport. Both start on first use of their side.
//
// The Reader is a peek/advance buffer: Read waits for a minimum amount of
// data and returns it without consuming it, Advance consumes it. A read
// abandoned through its context therefore never loses bytes.
//
// When a pump fails, both sides complete with the error:
//
//	p := pipe.NewSocketPipe(conn, pipe.DefaultOptions(1024))
//	defer p.Close()
//
//	p.Output().WriteString("*1\r\n$4\r\nPING\r\n")
//	if err := p.Output().Flush(ctx); err != nil {
//		return err
//	}
//	data, err := p.Input().Read(ctx, 7) // +PONG\r\n
package pipe
