package transport

import (
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/wippyai/wasm-bridge/errors"
)

// Body returns a reader over the decoded body of resp. Content encodings
// gzip and zstd are removed; identity passes through. The caller closes
// both the returned reader and resp.Body.
func Body(resp *http.Response) (io.ReadCloser, error) {
	enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch enc {
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "gzip body")
		}
		return zr, nil
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "zstd body")
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, errors.Unsupported(errors.PhaseLoad, "content encoding "+enc)
	}
}

// CheckStatus rejects responses outside the 2xx range.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New(errors.PhaseLoad, errors.KindUnavailable).
			Detail("unexpected status %s from %s", resp.Status, resp.Request.URL).
			Build()
	}
	return nil
}
