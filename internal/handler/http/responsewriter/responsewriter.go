// Package responsewriter wraps http.ResponseWriter to capture the status
// code and body size of a response after the handler has run. Both the
// request logger and the Prometheus middleware wrap every response
// through it.
package responsewriter

import (
	"net/http"
)

// ResponseWriter records what a handler wrote. The zero value is not
// usable; construct one with Wrap.
type ResponseWriter struct {
	http.ResponseWriter
	statusCode    int
	bytesWritten  int
	headerWritten bool
}

// Wrap returns a recording ResponseWriter around w. The status code
// starts at 200 because that is what net/http sends when a handler
// writes a body without calling WriteHeader.
func Wrap(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader records the status code and forwards it. Only the first
// call wins; handlers that call WriteHeader twice keep the original
// status, matching what actually went out on the wire.
func (w *ResponseWriter) WriteHeader(statusCode int) {
	if w.headerWritten {
		return
	}
	w.statusCode = statusCode
	w.headerWritten = true
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write forwards the body bytes and accumulates their count. A Write
// before any WriteHeader implies a 200, same as net/http.
func (w *ResponseWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

// StatusCode returns the recorded HTTP status code.
func (w *ResponseWriter) StatusCode() int {
	return w.statusCode
}

// BytesWritten returns the total number of body bytes written.
func (w *ResponseWriter) BytesWritten() int {
	return w.bytesWritten
}

// Unwrap exposes the underlying writer so http.ResponseController can
// reach Flush and friends through the wrapper.
func (w *ResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
