package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// maxPayloadSize bounds decompressed frames
const maxPayloadSize = 8 << 20

var gzipMagic = []byte{0x1f, 0x8b}

var ErrEmptyPayload = errors.New("empty payload")

// DecodeError reports which stage rejected a frame
type DecodeError struct {
	Stage string // "decompress" or "decode"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decompress returns the payload unchanged unless it is gzip-compressed
func Decompress(body []byte) ([]byte, error) {
	if !bytes.HasPrefix(body, gzipMagic) {
		return body, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, &DecodeError{Stage: "decompress", Err: err}
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, maxPayloadSize+1))
	if err != nil {
		return nil, &DecodeError{Stage: "decompress", Err: err}
	}
	if len(out) > maxPayloadSize {
		return nil, &DecodeError{Stage: "decompress", Err: fmt.Errorf("payload exceeds %d bytes", maxPayloadSize)}
	}
	return out, nil
}

// DecodeXML parses one incident document. The root element name is not checked.
func DecodeXML(body []byte) (*PtIncident, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &DecodeError{Stage: "decode", Err: ErrEmptyPayload}
	}

	var incident PtIncident
	if err := xml.Unmarshal(body, &incident); err != nil {
		return nil, &DecodeError{Stage: "decode", Err: err}
	}
	return &incident, nil
}

// DecodeJSON parses the dictionary form of an incident, as written by the
// archive or by earlier dict-based dumps.
func DecodeJSON(body []byte) (*PtIncident, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &DecodeError{Stage: "decode", Err: ErrEmptyPayload}
	}

	var incident PtIncident
	if err := json.Unmarshal(body, &incident); err != nil {
		return nil, &DecodeError{Stage: "decode", Err: err}
	}
	return &incident, nil
}

// Decode decompresses and decodes a raw frame body
func Decode(body []byte) (*PtIncident, error) {
	plain, err := Decompress(body)
	if err != nil {
		return nil, err
	}
	return DecodeXML(plain)
}
