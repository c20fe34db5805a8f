// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"errors"
	"io"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// MaxFrameSize is the maximum amount of undelimited text the decoder
	// will buffer while waiting for a frame delimiter (1MB).
	MaxFrameSize = 1 << 20

	// readChunkSize is the size of each read from the underlying body.
	readChunkSize = 4 * 1024

	// DataField is the field name carrying JSON event payloads.
	DataField = "data"
)

// delimiter separates frames.
var delimiter = []byte("\n\n")

// ErrFrameTooLarge is returned when a frame grows past MaxFrameSize
// without being terminated.
var ErrFrameTooLarge = errors.New("stream frame exceeds maximum size")

// =============================================================================
// FRAME
// =============================================================================

// Frame is one delimited unit of the streaming protocol.
type Frame struct {
	Field   string
	Payload string
}

// IsData returns true for frames carrying an event payload.
func (f Frame) IsData() bool {
	return f.Field == DataField
}

// parseFrame turns a delimited block into a frame.
//
// Lines are "field: payload"; a single space after the colon is stripped.
// Lines starting with ':' are comments. If the block has data lines their
// payloads are joined with '\n' and the frame is a data frame; otherwise the
// first field line wins. Returns false for blocks with no field lines.
func parseFrame(block []byte) (Frame, bool) {
	var (
		first    Frame
		hasFirst bool
		data     [][]byte
	)

	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 || line[0] == ':' {
			continue
		}

		field, payload := line, []byte(nil)
		if i := bytes.IndexByte(line, ':'); i >= 0 {
			field = line[:i]
			payload = line[i+1:]
			payload = bytes.TrimPrefix(payload, []byte(" "))
		}

		if string(field) == DataField {
			data = append(data, payload)
			continue
		}
		if !hasFirst {
			first = Frame{Field: string(field), Payload: string(payload)}
			hasFirst = true
		}
	}

	if len(data) > 0 {
		return Frame{Field: DataField, Payload: string(bytes.Join(data, []byte("\n")))}, true
	}
	return first, hasFirst
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder splits raw chunks into frames. Frames end at a blank line, with
// "\n" or "\r\n" line endings. Text received after the last complete frame
// is retained across Feed calls.
type Decoder struct {
	buf []byte
	// scanned is how far buf has been searched for a delimiter.
	scanned int
}

// NewDecoder creates a decoder for one logical stream.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends a chunk and returns every frame it completes, in order.
// ErrFrameTooLarge is returned alongside any frames already completed.
func (d *Decoder) Feed(chunk []byte) ([]Frame, error) {
	from := len(d.buf)
	if from > 0 && d.buf[from-1] == '\r' {
		from--
	}
	d.buf = append(d.buf, chunk...)
	d.buf = dropCRLF(d.buf, from)
	if d.scanned > from {
		d.scanned = from
	}

	var frames []Frame
	start := 0
	for {
		// A delimiter may straddle the previous scan boundary.
		from := d.scanned - (len(delimiter) - 1)
		if from < start {
			from = start
		}
		idx := bytes.Index(d.buf[from:], delimiter)
		if idx < 0 {
			break
		}
		end := from + idx
		if frame, ok := parseFrame(d.buf[start:end]); ok {
			frames = append(frames, frame)
		}
		start = end + len(delimiter)
		d.scanned = start
	}

	// Drop consumed text, keeping the unterminated tail.
	if start > 0 {
		n := copy(d.buf, d.buf[start:])
		d.buf = d.buf[:n]
	}
	d.scanned = len(d.buf)

	if len(d.buf) > MaxFrameSize {
		return frames, ErrFrameTooLarge
	}
	return frames, nil
}

// dropCRLF rewrites "\r\n" as "\n" in buf[from:], in place. A '\r' ending
// buf is kept since its '\n' may arrive with the next chunk.
func dropCRLF(buf []byte, from int) []byte {
	w := from
	for i := from; i < len(buf); i++ {
		if buf[i] == '\r' && i+1 < len(buf) && buf[i+1] == '\n' {
			continue
		}
		buf[w] = buf[i]
		w++
	}
	return buf[:w]
}

// Pending returns the number of buffered bytes not yet part of a frame.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// =============================================================================
// READER
// =============================================================================

// Reader yields frames lazily from an io.Reader.
type Reader struct {
	r       io.Reader
	dec     *Decoder
	chunk   []byte
	pending []Frame
	err     error
}

// NewReader creates a frame reader over a streaming body.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:     r,
		dec:   NewDecoder(),
		chunk: make([]byte, readChunkSize),
	}
}

// Next returns the next complete frame. It returns io.EOF once the body is
// exhausted; unterminated trailing text is dropped (see Dropped). Any other
// error comes from the underlying reader or is ErrFrameTooLarge.
func (r *Reader) Next() (Frame, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return Frame{}, r.err
		}

		n, err := r.r.Read(r.chunk)
		if n > 0 {
			frames, ferr := r.dec.Feed(r.chunk[:n])
			r.pending = append(r.pending, frames...)
			if ferr != nil {
				r.err = ferr
			}
		}
		if err != nil && r.err == nil {
			r.err = err
		}
	}

	frame := r.pending[0]
	r.pending = r.pending[1:]
	return frame, nil
}

// Dropped returns the number of buffered bytes that never formed a frame.
// Meaningful once Next has returned io.EOF.
func (r *Reader) Dropped() int {
	return r.dec.Pending()
}
