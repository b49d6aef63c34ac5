// Package httpbody unwraps response bodies whose Content-Encoding the
// transport left in place, which happens when a caller sets
// Accept-Encoding itself.
package httpbody

import (
	"bufio"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Decode returns a reader over resp's decoded body. Unknown or broken
// encodings yield the body unchanged. Closing resp.Body is still the
// caller's job.
func Decode(resp *http.Response) io.Reader {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		br := bufio.NewReader(resp.Body)
		if head, err := br.Peek(2); err != nil || head[0] != 0x1f || head[1] != 0x8b {
			return br
		}
		if gr, err := gzip.NewReader(br); err == nil {
			return gr
		}
		return br
	case "deflate":
		return inflate(resp.Body)
	case "zstd":
		// Single-threaded decoding runs without background goroutines, so
		// the decoder needs no Close.
		if zr, err := zstd.NewReader(resp.Body, zstd.WithDecoderConcurrency(1)); err == nil {
			return zr
		}
	}
	return resp.Body
}

// inflate accepts both zlib-wrapped and raw deflate streams; servers
// send either under "deflate".
func inflate(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err == nil && isZlibHeader(head[0], head[1]) {
		if zr, err := zlib.NewReader(br); err == nil {
			return zr
		}
	}
	return flate.NewReader(br)
}

func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && cmf>>4 <= 7 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
