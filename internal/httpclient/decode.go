package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// decodeBody reverses the Content-Encoding of a response body. The transport
// only decompresses on its own when it chose Accept-Encoding itself, and the
// NextGen default headers set it explicitly.
func decodeBody(encoding string, body []byte) ([]byte, error) {
	encoding = strings.ToLower(strings.TrimSpace(encoding))
	if len(body) == 0 {
		return body, nil
	}

	switch encoding {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close() //nolint:errcheck
		return io.ReadAll(zr)
	case "deflate":
		// RFC 9110 deflate is zlib-wrapped, but raw deflate is common in the wild.
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer zr.Close() //nolint:errcheck
			if out, err := io.ReadAll(zr); err == nil {
				return out, nil
			}
		}
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close() //nolint:errcheck
		return io.ReadAll(fr)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
