package resp

// Protocol delimiters
const (
	// CRLF terminates every control line and every bulk payload.
	CRLF = "\r\n"

	// Space separates the error type tag from the error message.
	Space = " "
)

// Type markers. The first byte of every frame selects its shape.
const (
	// MarkerSimpleString introduces a single-line, non binary-safe string.
	//
	// Wire format: +<text>\r\n
	MarkerSimpleString byte = '+'

	// MarkerError introduces an error line. The first space-separated token is
	// the error type tag (ERR, WRONGTYPE, LOADING, NOSCRIPT...).
	//
	// Wire format: -<type> <message>\r\n
	MarkerError byte = '-'

	// MarkerInteger introduces a signed 64-bit decimal integer.
	//
	// Wire format: :<int>\r\n
	MarkerInteger byte = ':'

	// MarkerBulkString introduces a length-prefixed binary-safe string.
	//
	// Wire format: $<len>\r\n<bytes>\r\n
	// Null:        $-1\r\n
	MarkerBulkString byte = '$'

	// MarkerArray introduces a count-prefixed sequence of frames.
	//
	// Wire format: *<count>\r\n<frame>*
	// Null:        *-1\r\n
	MarkerArray byte = '*'
)

// Limits enforced by the decoder.
const (
	// MaxBulkLength is the largest bulk payload accepted (the server's default
	// proto-max-bulk-len).
	MaxBulkLength = 512 * 1024 * 1024

	// MaxArrayLength is the largest element count accepted in one array header.
	MaxArrayLength = 1<<31 - 1

	// NullLength is the length header value encoding a null bulk string or a
	// null array.
	NullLength = -1
)

// GenericErrorType is the type tag given to error lines that carry no
// separate type token.
const GenericErrorType = "Error"

// Known server error type tags that drive client-side recovery.
const (
	// ErrorTypeLoading is returned while the server loads its dataset.
	ErrorTypeLoading = "LOADING"

	// ErrorTypeNoScript is returned by EVALSHA when the script hash is unknown.
	ErrorTypeNoScript = "NOSCRIPT"
)

var (
	crlfBytes = []byte(CRLF)
	nullBulk  = []byte("$-1\r\n")
)
