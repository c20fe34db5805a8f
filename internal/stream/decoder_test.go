// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = "data: {\"message_id\":7,\"content\":\"Hi\"}\n\n" +
	": keep-alive\n\n" +
	"data: {\"content\":\" there\"}\n\n" +
	"data: {\"content\":\", héllo 世界\"}\r\n\n" +
	"event: ping\n\n" +
	"data: {\"done\":true}\n\n"

var sampleFrames = []Frame{
	{Field: "data", Payload: `{"message_id":7,"content":"Hi"}`},
	{Field: "data", Payload: `{"content":" there"}`},
	{Field: "data", Payload: `{"content":", héllo 世界"}`},
	{Field: "event", Payload: "ping"},
	{Field: "data", Payload: `{"done":true}`},
}

// feedAll feeds chunks in order and collects every frame.
func feedAll(t *testing.T, chunks []string) []Frame {
	t.Helper()
	dec := NewDecoder()
	var out []Frame
	for _, c := range chunks {
		frames, err := dec.Feed([]byte(c))
		require.NoError(t, err)
		out = append(out, frames...)
	}
	return out
}

// =============================================================================
// DECODER TESTS
// =============================================================================

func TestDecoder_SingleChunk(t *testing.T) {
	frames := feedAll(t, []string{sampleStream})
	assert.Equal(t, sampleFrames, frames)
}

func TestDecoder_EverySplitPoint(t *testing.T) {
	for i := 0; i <= len(sampleStream); i++ {
		frames := feedAll(t, []string{sampleStream[:i], sampleStream[i:]})
		require.Equal(t, sampleFrames, frames, "split at byte %d", i)
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	chunks := make([]string, 0, len(sampleStream))
	for i := 0; i < len(sampleStream); i++ {
		chunks = append(chunks, sampleStream[i:i+1])
	}
	assert.Equal(t, sampleFrames, feedAll(t, chunks))
}

func TestDecoder_RandomChunking(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		var chunks []string
		rest := sampleStream
		for len(rest) > 0 {
			n := rng.Intn(len(rest)) + 1
			if n > 9 {
				n = rng.Intn(9) + 1
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		require.Equal(t, sampleFrames, feedAll(t, chunks), "trial %d: %q", trial, chunks)
	}
}

func TestDecoder_CRLFLineEndings(t *testing.T) {
	crlf := "data: {\"message_id\":7,\"content\":\"Hi\"}\r\n\r\n" +
		": keep-alive\r\n\r\n" +
		"data: {\"done\":true}\r\n\r\n"
	want := []Frame{
		{Field: "data", Payload: `{"message_id":7,"content":"Hi"}`},
		{Field: "data", Payload: `{"done":true}`},
	}

	for i := 0; i <= len(crlf); i++ {
		require.Equal(t, want, feedAll(t, []string{crlf[:i], crlf[i:]}), "split at byte %d", i)
	}

	dec := NewDecoder()
	frames, err := dec.Feed([]byte(crlf))
	require.NoError(t, err)
	assert.Len(t, frames, 2)
	assert.Zero(t, dec.Pending())
}

func TestDecoder_CarriageReturnHeldForNextChunk(t *testing.T) {
	dec := NewDecoder()
	frames, err := dec.Feed([]byte("data: {}\r\n\r"))
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = dec.Feed([]byte("\n"))
	require.NoError(t, err)
	assert.Equal(t, []Frame{{Field: "data", Payload: "{}"}}, frames)
	assert.Zero(t, dec.Pending())
}

func TestDecoder_FrameOnlyAfterDelimiter(t *testing.T) {
	dec := NewDecoder()

	frames, err := dec.Feed([]byte(`data: {"content":"a"}`))
	require.NoError(t, err)
	assert.Empty(t, frames)

	frames, err = dec.Feed([]byte("\n"))
	require.NoError(t, err)
	assert.Empty(t, frames, "a single newline does not end a frame")
	assert.Equal(t, len(`data: {"content":"a"}`)+1, dec.Pending())

	frames, err = dec.Feed([]byte("\n"))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, `{"content":"a"}`, frames[0].Payload)
	assert.Zero(t, dec.Pending())
}

func TestDecoder_MultipleFramesInOneChunk(t *testing.T) {
	frames := feedAll(t, []string{"data: 1\n\ndata: 2\n\ndata: 3\n\ndata: 4"})
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, string(rune('1'+i)), f.Payload)
	}
}

func TestDecoder_MultiLineData(t *testing.T) {
	frames := feedAll(t, []string{"id: 3\ndata: first\ndata: second\n\n"})
	require.Len(t, frames, 1)
	assert.Equal(t, Frame{Field: "data", Payload: "first\nsecond"}, frames[0])
}

func TestDecoder_PayloadSpacing(t *testing.T) {
	frames := feedAll(t, []string{"data:tight\n\ndata:  two spaces\n\nretry\n\n"})
	require.Len(t, frames, 3)
	assert.Equal(t, "tight", frames[0].Payload)
	assert.Equal(t, " two spaces", frames[1].Payload)
	assert.Equal(t, Frame{Field: "retry"}, frames[2])
}

func TestDecoder_SkipsEmptyAndCommentBlocks(t *testing.T) {
	frames := feedAll(t, []string{"\n\n: comment\n\n\n\n\ndata: x\n\n"})
	require.Len(t, frames, 1)
	assert.Equal(t, "x", frames[0].Payload)
}

func TestDecoder_FrameTooLarge(t *testing.T) {
	dec := NewDecoder()
	frames, err := dec.Feed([]byte("data: ok\n\ndata: " + strings.Repeat("x", MaxFrameSize)))
	require.ErrorIs(t, err, ErrFrameTooLarge)
	require.Len(t, frames, 1, "frames completed before the overflow are still returned")
	assert.Equal(t, "ok", frames[0].Payload)
}

// =============================================================================
// READER TESTS
// =============================================================================

func TestReader_Next(t *testing.T) {
	r := NewReader(iotest.OneByteReader(strings.NewReader(sampleStream + "data: {\"content\":\"dangling\"}")))

	var got []Frame
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, f)
	}

	assert.Equal(t, sampleFrames, got)
	assert.Equal(t, len(`data: {"content":"dangling"}`), r.Dropped())

	// EOF is sticky.
	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_TransportError(t *testing.T) {
	boom := errors.New("connection reset")
	body := io.MultiReader(
		strings.NewReader("data: {\"content\":\"a\"}\n\n"),
		iotest.ErrReader(boom),
	)
	r := NewReader(body)

	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"content":"a"}`, f.Payload)

	_, err = r.Next()
	assert.ErrorIs(t, err, boom)
}

func TestReader_DataAndEOFTogether(t *testing.T) {
	r := NewReader(iotest.DataErrReader(strings.NewReader("data: 1\n\ndata: 2\n\n")))

	for _, want := range []string{"1", "2"} {
		f, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, want, f.Payload)
	}
	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)
}
