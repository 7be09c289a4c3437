package relay

import (
	"fmt"
	"io"
	"net/http"
)

// chunkSize is the relay buffer size. One buffer per in-flight request is
// the only audio the gateway ever holds in memory.
const chunkSize = 8192

// SourceError reports that the upstream stream failed mid-relay. Any bytes
// already written cannot be un-sent; the caller terminates the connection
// and logs the event.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("relay: upstream read failed: %v", e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// SinkError reports that writing to the outbound response failed, which
// almost always means the client disconnected. The caller releases the
// upstream stream and sends nothing further.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("relay: client write failed: %v", e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// Copy relays bytes from src to dst in arrival order until src reaches
// end-of-stream. Each chunk is flushed immediately when dst supports it, so
// audio reaches the caller as it is produced rather than when internal
// buffers fill. Chunk boundaries are not preserved; the byte sequence is.
//
// On failure the returned error identifies the failing side: *SourceError
// when the upstream read broke, *SinkError when the outbound write broke.
// A write failure stops the relay before the next upstream read, so a gone
// client never keeps the upstream connection busy.
func Copy(dst io.Writer, src io.Reader) (int64, error) {
	flusher, _ := dst.(http.Flusher)
	buf := make([]byte, chunkSize)

	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			wn, writeErr := dst.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, &SinkError{Err: writeErr}
			}
			if wn < n {
				return written, &SinkError{Err: io.ErrShortWrite}
			}
			if flusher != nil {
				flusher.Flush()
			}
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, &SourceError{Err: readErr}
		}
	}
}
