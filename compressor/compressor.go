// Package compressor holds pooled gzip, zlib and brotli codecs. The brotli
// and deflate variants are also registered as gRPC compressors.
package compressor

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/cockroachdb/errors"
)

type ContentEncoding int

const (
	ContentEncodingGzip    ContentEncoding = 0
	ContentEncodingDeflate ContentEncoding = 1
	ContentEncodingBrotli  ContentEncoding = 2
	ContentEncodingPlain   ContentEncoding = 3
)

var (
	ErrUnknownContentEncoding = errors.New("[SRPC] unknown content encoding")
)

// String returns the HTTP content-coding token of the encoding.
func (e ContentEncoding) String() string {
	switch e {
	case ContentEncodingGzip:
		return "gzip"
	case ContentEncodingDeflate:
		return DeflateName
	case ContentEncodingBrotli:
		return BrotliName
	case ContentEncodingPlain:
		return "identity"
	default:
		return "unknown"
	}
}

// ParseContentEncoding is the inverse of ContentEncoding.String.
// An empty name means no compression.
func ParseContentEncoding(name string) (ContentEncoding, error) {
	switch name {
	case "gzip":
		return ContentEncodingGzip, nil
	case DeflateName:
		return ContentEncodingDeflate, nil
	case BrotliName:
		return ContentEncodingBrotli, nil
	case "", "identity":
		return ContentEncodingPlain, nil
	default:
		return 0, errors.Wrapf(ErrUnknownContentEncoding, "%q", name)
	}
}

type CompressorManager struct {
	byteReaderPool   sync.Pool
	bufferPool       sync.Pool
	gzipWriterPool   sync.Pool
	zlibWriterPool   sync.Pool
	brotliWriterPool sync.Pool
}

func NewCompressorManager() *CompressorManager {
	return &CompressorManager{
		byteReaderPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewReader(nil)
			},
		},
		gzipWriterPool: sync.Pool{
			New: func() interface{} {
				return gzip.NewWriter(nil)
			},
		},
		zlibWriterPool: sync.Pool{
			New: func() interface{} {
				return zlib.NewWriter(nil)
			},
		},
		brotliWriterPool: sync.Pool{
			New: func() interface{} {
				return brotli.NewWriter(nil)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// Compress encodes data with tp. A nil input stays nil.
func (c *CompressorManager) Compress(tp ContentEncoding, data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}

	switch tp {
	case ContentEncodingGzip:
		return c.GzipCompress(data)
	case ContentEncodingDeflate:
		return c.ZlibCompress(data)
	case ContentEncodingBrotli:
		return c.BrotliCompress(data)
	case ContentEncodingPlain:
		return data, nil
	default:
		return nil, ErrUnknownContentEncoding
	}
}

// Decompress reverses Compress.
func (c *CompressorManager) Decompress(tp ContentEncoding, data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}

	switch tp {
	case ContentEncodingGzip:
		return c.GzipDecompress(data)
	case ContentEncodingDeflate:
		return c.ZlibDecompress(data)
	case ContentEncodingBrotli:
		return c.BrotliDecompress(data)
	case ContentEncodingPlain:
		return data, nil
	default:
		return nil, ErrUnknownContentEncoding
	}
}

func (c *CompressorManager) GzipDecompress(data []byte) ([]byte, error) {
	return c.decompress(data, func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	})
}

func (c *CompressorManager) GzipCompress(data []byte) ([]byte, error) {
	w := c.gzipWriterPool.Get().(*gzip.Writer)
	defer c.gzipWriterPool.Put(w)

	return c.compress(data, func(buf *bytes.Buffer) io.WriteCloser {
		w.Reset(buf)
		return w
	})
}

func (c *CompressorManager) ZlibDecompress(data []byte) ([]byte, error) {
	return c.decompress(data, func(r io.Reader) (io.Reader, error) {
		return zlib.NewReader(r)
	})
}

func (c *CompressorManager) ZlibCompress(data []byte) ([]byte, error) {
	w := c.zlibWriterPool.Get().(*zlib.Writer)
	defer c.zlibWriterPool.Put(w)

	return c.compress(data, func(buf *bytes.Buffer) io.WriteCloser {
		w.Reset(buf)
		return w
	})
}

func (c *CompressorManager) BrotliDecompress(data []byte) ([]byte, error) {
	return c.decompress(data, func(r io.Reader) (io.Reader, error) {
		return brotli.NewReader(r), nil
	})
}

func (c *CompressorManager) BrotliCompress(data []byte) ([]byte, error) {
	w := c.brotliWriterPool.Get().(*brotli.Writer)
	defer c.brotliWriterPool.Put(w)

	return c.compress(data, func(buf *bytes.Buffer) io.WriteCloser {
		w.Reset(buf)
		return w
	})
}

func (c *CompressorManager) compress(data []byte, reset func(buf *bytes.Buffer) io.WriteCloser) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	defer c.bufferPool.Put(buf)
	buf.Reset()

	w := reset(buf)
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, "compress")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "compress")
	}

	// buf goes back to the pool, the caller gets its own copy.
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (c *CompressorManager) decompress(data []byte, open func(r io.Reader) (io.Reader, error)) ([]byte, error) {
	byteReader := c.byteReaderPool.Get().(*bytes.Reader)
	defer c.byteReaderPool.Put(byteReader)
	byteReader.Reset(data)

	reader, err := open(byteReader)
	if err != nil {
		return nil, errors.Wrap(err, "decompress")
	}
	if closer, ok := reader.(io.Closer); ok {
		defer closer.Close()
	}

	return io.ReadAll(reader)
}
