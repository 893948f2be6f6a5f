package stream

import (
	"errors"
	"net/http"
)

var errNotFlushable = errors.New("stream: response writer cannot flush")

// Sink receives the events of one session in order.
type Sink interface {
	Send(ev *Event) error
}

// SSEWriter is a Sink writing server-sent events to an HTTP response.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errNotFlushable
	}
	return &SSEWriter{w: w, flusher: f}, nil
}

// Open sends the response headers. Nothing else may be written to the
// response as JSON afterwards.
func (s *SSEWriter) Open() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

func (s *SSEWriter) Send(ev *Event) error {
	b, err := ev.Frame()
	if err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
