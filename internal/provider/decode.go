package provider

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Decode undoes a Content-Encoding header value. Stacked encodings are
// removed last applied first.
func Decode(encoding string, body []byte) ([]byte, error) {
	codings := strings.Split(encoding, ",")
	for i := len(codings) - 1; i >= 0; i-- {
		c := strings.ToLower(strings.TrimSpace(codings[i]))
		if c == "" || c == "identity" {
			continue
		}
		out, err := decodeOne(c, body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c, err)
		}
		body = out
	}
	return body, nil
}

func decodeOne(coding string, body []byte) ([]byte, error) {
	var r io.Reader
	switch coding {
	case "br":
		r = brotli.NewReader(bytes.NewReader(body))
	case "gzip", "x-gzip":
		gr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		r = gr
	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw.
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer zr.Close()
			r = zr
		} else {
			fr := flate.NewReader(bytes.NewReader(body))
			defer fr.Close()
			r = fr
		}
	case "zstd":
		d, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(maxBody)))
		if err != nil {
			return nil, err
		}
		defer d.Close()
		out, err := d.DecodeAll(body, nil)
		if err != nil {
			return nil, err
		}
		return readLimited(bytes.NewReader(out))
	default:
		return nil, fmt.Errorf("unsupported content encoding")
	}
	return readLimited(r)
}
