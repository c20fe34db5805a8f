// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the backend's event-delimited streaming replies.
//
// A reply body is a sequence of frames of the form "field: payload\n\n".
// The body arrives in chunks of arbitrary size: one frame may span several
// chunks and one chunk may carry several frames. The Decoder buffers text
// across chunk boundaries and only emits a frame once its blank-line
// delimiter has been seen.
//
// # Key Types
//
//   - Decoder: Push-style frame splitter fed with raw chunks
//   - Reader: Pull-style frame iterator over an io.Reader
//   - Frame: One delimited {field, payload} unit
//   - Event: The JSON payload of a data frame
//   - DecodeError: A frame whose payload is not well-formed JSON
//
// # Usage
//
//	r := stream.NewReader(resp.Body)
//	for {
//	    frame, err := r.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ev, err := stream.DecodeEvent(frame)
//	    ...
//	}
//
// A Decoder or Reader covers exactly one logical stream; construct a new
// one per send.
package stream
