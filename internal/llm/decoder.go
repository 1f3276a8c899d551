package llm

import (
	"encoding/json"
	"strings"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// StreamDecoder turns raw chunks of a streamed completion connection into
// text deltas. It carries incomplete lines across chunk boundaries, so the
// emitted deltas do not depend on how the network splits the byte stream.
//
// Once the [DONE] sentinel is seen no further deltas are emitted, but callers
// keep reading until the connection closes; connection close is the single
// source of truth for the end of a stream.
type StreamDecoder struct {
	buf  string
	done bool
}

// Feed appends a chunk and returns the deltas completed by it, in order.
// Malformed lines and lines without the data prefix are skipped silently.
func (d *StreamDecoder) Feed(chunk string) []string {
	d.buf += chunk

	var deltas []string
	for {
		lineEnd := strings.IndexByte(d.buf, '\n')
		if lineEnd == -1 {
			break
		}
		line := strings.TrimSpace(d.buf[:lineEnd])
		d.buf = d.buf[lineEnd+1:]

		if d.done || !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		data := line[len(dataPrefix):]
		if data == doneSentinel {
			d.done = true
			continue
		}
		var parsed streamChunk
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			continue
		}
		if len(parsed.Choices) == 0 {
			continue
		}
		if content := parsed.Choices[0].Delta.Content; content != "" {
			deltas = append(deltas, content)
		}
	}
	return deltas
}

// Done reports whether the [DONE] sentinel has been seen.
func (d *StreamDecoder) Done() bool {
	return d.done
}
