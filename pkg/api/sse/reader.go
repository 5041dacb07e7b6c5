package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

const maxFrameSize = 8 << 20

// Reader yields the data payload of each frame. Audio clips arrive as one
// base64 frame, so the line limit is generous.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &Reader{scanner: scanner}
}

// Next returns the next frame's data, or io.EOF when the stream is over.
func (r *Reader) Next() ([]byte, error) {
	var data bytes.Buffer

	for r.scanner.Scan() {
		line := r.scanner.Bytes()

		if len(line) == 0 {
			if data.Len() == 0 {
				continue
			}
			return data.Bytes(), nil
		}

		if payload, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(bytes.TrimPrefix(payload, []byte(" ")))
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading event stream: %w", err)
	}
	if data.Len() > 0 {
		return data.Bytes(), nil
	}
	return nil, io.EOF
}

// Decode reads the next frame into v.
func (r *Reader) Decode(v any) error {
	data, err := r.Next()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding event %q: %w", data, err)
	}
	return nil
}
