// Package transport is the HTTP client shared by module loading and the
// fetch capability: retries through go-retryablehttp, client side rate
// limiting, and gzip/zstd response decoding.
package transport
