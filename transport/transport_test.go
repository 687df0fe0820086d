package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
)

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zstded(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func TestBodyDecoding(t *testing.T) {
	payload := []byte("hello, sandbox")
	tests := []struct {
		encoding string
		body     []byte
		wantErr  bool
	}{
		{"", payload, false},
		{"identity", payload, false},
		{"gzip", gzipped(t, payload), false},
		{"zstd", zstded(t, payload), false},
		{"br", payload, true},
	}
	for _, tc := range tests {
		t.Run("encoding "+tc.encoding, func(t *testing.T) {
			resp := &http.Response{
				Header: http.Header{"Content-Encoding": {tc.encoding}},
				Body:   io.NopCloser(bytes.NewReader(tc.body)),
			}
			r, err := Body(resp)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("decoded %q", got)
			}
		})
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("X-Test") != "yes" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(gzipped(t, []byte("ok")))
	}))
	defer srv.Close()

	c := NewClient(Options{RetryWaitMin: time.Millisecond, RetryWaitMax: 5 * time.Millisecond})
	resp, body, err := c.Fetch(context.Background(), http.MethodGet, srv.URL, http.Header{"X-Test": {"yes"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("status %d body %q", resp.StatusCode, body)
	}
	if hits.Load() != 3 {
		t.Errorf("server saw %d requests, want 3", hits.Load())
	}
}

func TestCheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewClient(Options{RetryMax: -1})
	resp, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if err := CheckStatus(resp); !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseLoad, Kind: bridgeerrors.KindUnavailable}) {
		t.Errorf("CheckStatus = %v", err)
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	c := NewClient(Options{RequestsPerSecond: 0.001})
	ctx, cancel := context.WithCancel(context.Background())
	// The first request consumes the only token.
	_ = c.limiter.Wait(ctx)
	cancel()
	if _, err := c.Get(ctx, "http://127.0.0.1:1"); err == nil {
		t.Error("request after cancellation should fail")
	}
}
