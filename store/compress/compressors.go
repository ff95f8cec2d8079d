package compress

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// Compressor tells how to compress bytes on their way into a Store
// and uncompress them on the way out.
// Uncompress must be the inverse of Compress.
type Compressor interface {
	Compress([]byte) ([]byte, error)
	Uncompress([]byte) ([]byte, error)
}

// LZW is a Compressor implementing lzw compression.
type LZW struct {
	Order lzw.Order
}

// Compress implements Compressor.Compress.
func (l LZW) Compress(inp []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := lzw.NewWriter(buf, l.Order, 8)
	if _, err := w.Write(inp); err != nil {
		return nil, errors.Wrap(err, "lzw-compressing")
	}
	err := w.Close()
	return buf.Bytes(), errors.Wrap(err, "closing lzw writer")
}

// Uncompress implements Compressor.Uncompress.
func (l LZW) Uncompress(inp []byte) ([]byte, error) {
	rr := lzw.NewReader(bytes.NewReader(inp), l.Order, 8)
	defer rr.Close()
	return io.ReadAll(rr)
}

// Flate is a Compressor implementing RFC1951 DEFLATE compression.
type Flate struct {
	Level int
}

// Compress implements Compressor.Compress.
func (f Flate) Compress(inp []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	level := f.Level
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		level = flate.DefaultCompression
	}
	w, err := flate.NewWriter(buf, level)
	if err != nil {
		return nil, errors.Wrap(err, "creating flate writer")
	}
	if _, err = w.Write(inp); err != nil {
		return nil, errors.Wrap(err, "flate-compressing")
	}
	err = w.Close()
	return buf.Bytes(), errors.Wrap(err, "closing flate writer")
}

// Uncompress implements Compressor.Uncompress.
func (f Flate) Uncompress(inp []byte) ([]byte, error) {
	rr := flate.NewReader(bytes.NewReader(inp))
	defer rr.Close()
	return io.ReadAll(rr)
}

// Zstd is a Compressor implementing Zstandard compression.
type Zstd struct {
	Level zstd.EncoderLevel // zero means zstd.SpeedDefault
}

// Compress implements Compressor.Compress.
func (z Zstd) Compress(inp []byte) ([]byte, error) {
	level := z.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd encoder")
	}
	out := enc.EncodeAll(inp, nil)
	return out, errors.Wrap(enc.Close(), "closing zstd encoder")
}

// Uncompress implements Compressor.Uncompress.
func (z Zstd) Uncompress(inp []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd decoder")
	}
	defer dec.Close()

	out, err := dec.DecodeAll(inp, nil)
	return out, errors.Wrap(err, "zstd-uncompressing")
}

// XZ is a Compressor implementing xz (LZMA2) compression.
type XZ struct{}

// Compress implements Compressor.Compress.
func (XZ) Compress(inp []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w, err := xz.NewWriter(buf)
	if err != nil {
		return nil, errors.Wrap(err, "creating xz writer")
	}
	if _, err = w.Write(inp); err != nil {
		return nil, errors.Wrap(err, "xz-compressing")
	}
	err = w.Close()
	return buf.Bytes(), errors.Wrap(err, "closing xz writer")
}

// Uncompress implements Compressor.Uncompress.
func (XZ) Uncompress(inp []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(inp))
	if err != nil {
		return nil, errors.Wrap(err, "creating xz reader")
	}
	return io.ReadAll(r)
}
