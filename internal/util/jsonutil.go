package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// DecodeJSONMap decodes a JSON object into a map[string]any.
//
// json.Decoder.UseNumber() keeps numbers as json.Number so integer class
// indexes are not routed through float parsing twice.
func DecodeJSONMap(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	// Ensure there is no trailing non-whitespace content.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("unexpected trailing JSON content")
		}
		return nil, fmt.Errorf("unexpected trailing JSON content: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// ReadAllLimit reads at most max bytes from r. Longer input is truncated.
func ReadAllLimit(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	buf := &bytes.Buffer{}
	_, err := io.CopyN(buf, r, max+1)
	if err != nil && err != io.EOF {
		return nil, err
	}
	b := buf.Bytes()
	if int64(len(b)) > max {
		return b[:max], nil
	}
	return b, nil
}
