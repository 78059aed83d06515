package sse

import (
	"bytes"
	"io"
	"log/slog"
)

// Marker prefixes every event line on the wire.
const Marker = "data: "

const readSize = 4096

// MaxLineSize bounds the unterminated line the decoder will buffer.
// Longer lines are dropped up to their newline.
const MaxLineSize = 1 << 20

// Decoder turns arbitrarily split chunks of the response body into events.
// It owns a rolling buffer holding the unterminated tail of the last chunk.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf        []byte
	discarding bool
	errors     int
	logger     *slog.Logger
}

func NewDecoder(logger *slog.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// Feed appends chunk to the buffer and returns the events of every line it completed.
// Malformed event lines are logged, counted and skipped.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.discarding {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			return nil
		}
		d.discarding = false
		chunk = chunk[i+1:]
	}
	d.buf = append(d.buf, chunk...)

	var events []Event
	start := 0
	for {
		i := bytes.IndexByte(d.buf[start:], '\n')
		if i < 0 {
			break
		}
		line := d.buf[start : start+i]
		start += i + 1

		if evt, ok := d.decodeLine(line); ok {
			events = append(events, evt)
		}
	}
	d.buf = append(d.buf[:0], d.buf[start:]...)

	if len(d.buf) > MaxLineSize {
		d.errors++
		if d.logger != nil {
			d.logger.Warn("dropping oversized stream line", "bytes", len(d.buf), "limit", MaxLineSize)
		}
		d.buf = nil
		d.discarding = true
	}
	return events
}

// Pending returns how many bytes of an unterminated line are buffered.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Errors returns the number of event lines that failed to decode.
func (d *Decoder) Errors() int {
	return d.errors
}

// Reset drops any buffered fragment.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.discarding = false
}

func (d *Decoder) decodeLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(Marker)) {
		return Event{}, false
	}

	evt, err := parseEvent(line[len(Marker):])
	if err != nil {
		d.errors++
		if d.logger != nil {
			d.logger.Warn("skipping malformed stream event", "error", err, "line", truncate(line, 200))
		}
		return Event{}, false
	}
	return evt, true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Stream yields events lazily from a response body. It is single pass and
// not restartable; any unterminated trailing line is discarded at end of stream.
type Stream struct {
	body    io.ReadCloser
	dec     *Decoder
	chunk   []byte
	pending []Event
	err     error
}

func NewStream(body io.ReadCloser, dec *Decoder) *Stream {
	return &Stream{
		body:  body,
		dec:   dec,
		chunk: make([]byte, readSize),
	}
}

// Next returns the next event. It returns io.EOF once the body is exhausted,
// or the transport's read error if the body fails.
func (s *Stream) Next() (Event, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return Event{}, s.err
		}

		n, err := s.body.Read(s.chunk)
		if n > 0 {
			s.pending = s.dec.Feed(s.chunk[:n])
		}
		if err != nil {
			if err == io.EOF && s.dec.Pending() > 0 {
				if s.dec.logger != nil {
					s.dec.logger.Debug("discarding unterminated stream tail", "bytes", s.dec.Pending())
				}
				s.dec.Reset()
			}
			s.err = err
		}
	}

	evt := s.pending[0]
	s.pending = s.pending[1:]
	return evt, nil
}

// Close releases the underlying body.
func (s *Stream) Close() error {
	return s.body.Close()
}
