// Package stream fragments a complete backend answer into an ordered
// sequence of incremental delivery chunks. The backend does not stream;
// chunking happens client-side so callers expecting token-level delivery
// keep working.
package stream

import (
	"context"
	"time"

	"github.com/cmdline-assistant/clad/internal/domain"
)

// Emulate turns one answer into a finite, single-pass chunk sequence sent
// over an unbuffered channel, so a slow reader applies backpressure instead
// of the whole stream being buffered up front.
//
// The sequence is: one role chunk, one content chunk per word segment, and
// exactly one terminal chunk with finish_reason "stop" and an empty delta.
// Concatenating the content deltas reproduces the answer text byte for
// byte. Cancelling ctx stops emission after the chunk currently in flight;
// a chunk is never split across two emissions.
func Emulate(ctx context.Context, answer domain.BackendAnswer, responseID, model string) <-chan domain.StreamChunk {
	out := make(chan domain.StreamChunk)
	created := time.Now().Unix()

	chunk := func(delta *domain.Delta, finishReason string) domain.StreamChunk {
		return domain.StreamChunk{
			ID:      responseID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []domain.Choice{
				{Index: 0, Delta: delta, FinishReason: finishReason},
			},
		}
	}

	go func() {
		defer close(out)

		send := func(c domain.StreamChunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(chunk(&domain.Delta{Role: "assistant"}, "")) {
			return
		}

		for _, segment := range splitSegments(answer.Text) {
			if !send(chunk(&domain.Delta{Content: segment}, "")) {
				return
			}
		}

		send(chunk(&domain.Delta{}, "stop"))
	}()

	return out
}

// splitSegments cuts text on whitespace-delimited word boundaries. Each
// segment keeps the whitespace that follows its word, and leading
// whitespace rides on the first segment, so the segments concatenate back
// to the original text exactly.
func splitSegments(text string) []string {
	if text == "" {
		return nil
	}

	var segments []string
	n := len(text)
	start, i := 0, 0

	for i < n && isSpace(text[i]) {
		i++
	}
	for i < n {
		for i < n && !isSpace(text[i]) {
			i++
		}
		for i < n && isSpace(text[i]) {
			i++
		}
		segments = append(segments, text[start:i])
		start = i
	}
	if start < n {
		// all-whitespace text becomes a single segment
		segments = append(segments, text[start:])
	}

	return segments
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
