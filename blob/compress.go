package blob

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression is the codec implied by a file extension.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// CompressionFor picks the codec from the name's extension.
func CompressionFor(name string) Compression {
	switch strings.ToLower(path.Ext(name)) {
	case ".gz", ".gzip":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// stackedReader closes the decoder before the underlying stream.
type stackedReader struct {
	io.Reader
	closeFns []func() error
}

func (r *stackedReader) Close() error {
	var first error
	for _, fn := range r.closeFns {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Decompress wraps rc with the decoder implied by name. Closing the result closes rc.
func Decompress(name string, rc io.ReadCloser) (io.ReadCloser, error) {
	switch CompressionFor(name) {
	case CompressionGzip:
		zr, err := gzip.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("open gzip stream %s: %w", name, err)
		}
		return &stackedReader{Reader: zr, closeFns: []func() error{zr.Close, rc.Close}}, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("open zstd stream %s: %w", name, err)
		}
		return &stackedReader{Reader: dec, closeFns: []func() error{
			func() error { dec.Close(); return nil },
			rc.Close,
		}}, nil
	case CompressionLZ4:
		return &stackedReader{Reader: lz4.NewReader(rc), closeFns: []func() error{rc.Close}}, nil
	default:
		return rc, nil
	}
}

// stackedWriter flushes and closes the encoder before the underlying file.
type stackedWriter struct {
	io.Writer
	closeFns []func() error
}

func (w *stackedWriter) Close() error {
	var first error
	for _, fn := range w.closeFns {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Compress wraps wc with the encoder implied by name. Closing the result
// finishes the stream and closes wc.
func Compress(name string, wc io.WriteCloser) (io.WriteCloser, error) {
	switch CompressionFor(name) {
	case CompressionGzip:
		zw := gzip.NewWriter(wc)
		return &stackedWriter{Writer: zw, closeFns: []func() error{zw.Close, wc.Close}}, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(wc, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			_ = wc.Close()
			return nil, fmt.Errorf("open zstd writer %s: %w", name, err)
		}
		return &stackedWriter{Writer: enc, closeFns: []func() error{enc.Close, wc.Close}}, nil
	case CompressionLZ4:
		lw := lz4.NewWriter(wc)
		return &stackedWriter{Writer: lw, closeFns: []func() error{lw.Close, wc.Close}}, nil
	default:
		return wc, nil
	}
}
