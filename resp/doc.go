// Package resp implements the wire codec of the Redis serialization protocol
// (RESP2).
//
// # Frames
//
// Every frame starts with a one byte type marker and ends with CRLF:
//
//	+OK\r\n                         simple string
//	-ERR unknown command\r\n        error (type, message)
//	:1000\r\n                       integer
//	$5\r\nhello\r\n                 bulk string
//	$-1\r\n                         null
//	*2\r\n$3\r\nGET\r\n$1\r\nk\r\n  array
//
// Requests are always arrays of bulk strings.
//
// # Decoding
//
// Read pulls bytes from a Source until one complete frame is buffered, then
// materializes it and consumes it. Scanning happens on the unconsumed window
// only, so an abandoned read never leaves half a frame behind:
//
//	v, err := resp.Read(ctx, conn.Input(), nil)
//
// Payloads can be decoded into pooled memory with PooledBuffers:
//
//	bufs := resp.NewPooledBuffers()
//	defer bufs.Release()
//	v, err := resp.Read(ctx, src, bufs)
//
// # Errors
//
// Malformed frames produce *ProtocolError. Transport failures are reported
// by the Source and wrapped as *ConnectionError by the connection layer.
// ShouldCloseConnection tells whether a connection can be reused after an
// error.
package resp
