// Package sse decodes server-sent event streams. All three supported
// providers frame their streaming responses as SSE; the per-provider adapters
// share this decoder and interpret the decoded payloads themselves.
package sse

import (
	"bufio"
	"bytes"
	"io"
)

// Event is one decoded server-sent event. Data concatenates multiple `data:`
// lines with `\n`, per the SSE spec. Name carries the `event:` field when the
// provider sets one (Anthropic does; OpenAI and Gemini do not).
type Event struct {
	Name string
	Data []byte
}

// Decoder reads events from an SSE byte stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder creates a decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next event. Comment lines are skipped. io.EOF is returned
// once the underlying stream ends with no buffered event.
func (d *Decoder) Next() (Event, error) {
	var (
		name      string
		dataLines [][]byte
	)
	flush := func() Event {
		return Event{Name: name, Data: bytes.Join(dataLines, []byte("\n"))}
	}

	for {
		line, err := d.r.ReadBytes('\n')
		if err != nil {
			line = bytes.TrimRight(line, "\r\n")
			if len(line) > 0 {
				name, dataLines = parseLine(line, name, dataLines)
			}
			if len(dataLines) > 0 {
				return flush(), nil
			}
			if err == io.EOF {
				return Event{}, io.EOF
			}
			return Event{}, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(dataLines) == 0 {
				continue
			}
			return flush(), nil
		}
		if line[0] == ':' {
			continue
		}
		name, dataLines = parseLine(line, name, dataLines)
	}
}

func parseLine(line []byte, name string, dataLines [][]byte) (string, [][]byte) {
	if val, ok := fieldValue(line, "event:"); ok {
		return string(val), dataLines
	}
	if val, ok := fieldValue(line, "data:"); ok {
		return name, append(dataLines, append([]byte(nil), val...))
	}
	return name, dataLines
}

func fieldValue(line []byte, prefix string) ([]byte, bool) {
	if !bytes.HasPrefix(line, []byte(prefix)) {
		return nil, false
	}
	val := line[len(prefix):]
	if len(val) > 0 && val[0] == ' ' {
		val = val[1:]
	}
	return val, true
}
