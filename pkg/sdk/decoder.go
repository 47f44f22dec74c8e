package netscout

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

// Decoder reads events from a search stream. Blocks are only returned once
// their terminating blank line has been read, so events split across network
// reads are reassembled.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps a stream body.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next event. It returns io.EOF at a clean end of stream
// and io.ErrUnexpectedEOF when the stream stops inside a block.
func (d *Decoder) Next() (Event, error) {
	var (
		name    string
		data    bytes.Buffer
		hasData bool
		started bool
	)
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, err
		}
		if errors.Is(err, io.EOF) && line == "" {
			if started {
				return Event{}, io.ErrUnexpectedEOF
			}
			return Event{}, io.EOF
		}
		if errors.Is(err, io.EOF) {
			// last line without newline is never a complete block
			return Event{}, io.ErrUnexpectedEOF
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if !started {
				continue
			}
			if name == "" {
				name = "message"
			}
			return Event{Name: EventName(name), Data: bytes.Clone(data.Bytes())}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
			started = true
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
			started = true
		}
	}
}
