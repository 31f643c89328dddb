// Package sse parses text/event-stream framing shared by every vendor's
// streaming endpoint. It only understands line framing and the [DONE]
// sentinel; per-vendor event decoding lives in each provider package.
package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// RawEvent is one decoded `data:` frame, still vendor-specific JSON.
type RawEvent struct {
	Data json.RawMessage
}

// Parse scans r for SSE framing: accumulate `data:` lines until a blank
// line, join with newlines, and emit one RawEvent per frame. Comment
// lines (leading ':') are ignored. The `[DONE]` sentinel terminates
// consumption without emitting an event for that frame.
func Parse(r io.Reader, emit func(RawEvent) error) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	var pending []string
	done := false
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		joined := strings.Join(pending, "\n")
		pending = pending[:0]
		trimmed := strings.TrimSpace(joined)
		if trimmed == "[DONE]" {
			done = true
			return nil
		}
		if trimmed == "" {
			return nil
		}
		return emit(RawEvent{Data: json.RawMessage(joined)})
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
			if done {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// comment/keep-alive, ignore
		case strings.HasPrefix(line, "data:"):
			pending = append(pending, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// unrecognized field (event:, id:, retry:) — ignored by this
			// generic parser; vendor-specific framing needs are handled
			// entirely within the `data:` JSON payload for every backend
			// this module supports.
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
