package compressor

import (
	"compress/zlib"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"google.golang.org/grpc/encoding"

	// gzip registers itself with grpc.
	_ "google.golang.org/grpc/encoding/gzip"
)

const (
	// BrotliName is the grpc-encoding token of the brotli compressor.
	BrotliName = "br"
	// DeflateName is the grpc-encoding token of the zlib compressor.
	DeflateName = "deflate"
)

func init() {
	encoding.RegisterCompressor(newBrotliCompressor())
	encoding.RegisterCompressor(newDeflateCompressor())
}

type pooledWriter struct {
	io.WriteCloser
	pool *sync.Pool
}

func (w *pooledWriter) Close() error {
	defer w.pool.Put(w)
	return w.WriteCloser.Close()
}

type brotliCompressor struct {
	pool sync.Pool
}

func newBrotliCompressor() *brotliCompressor {
	c := &brotliCompressor{}
	c.pool.New = func() interface{} {
		return &pooledWriter{WriteCloser: brotli.NewWriter(nil), pool: &c.pool}
	}
	return c
}

func (c *brotliCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	pw := c.pool.Get().(*pooledWriter)
	pw.WriteCloser.(*brotli.Writer).Reset(w)
	return pw, nil
}

func (c *brotliCompressor) Decompress(r io.Reader) (io.Reader, error) {
	return brotli.NewReader(r), nil
}

func (c *brotliCompressor) Name() string {
	return BrotliName
}

type deflateCompressor struct {
	pool sync.Pool
}

func newDeflateCompressor() *deflateCompressor {
	c := &deflateCompressor{}
	c.pool.New = func() interface{} {
		return &pooledWriter{WriteCloser: zlib.NewWriter(nil), pool: &c.pool}
	}
	return c
}

func (c *deflateCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	pw := c.pool.Get().(*pooledWriter)
	pw.WriteCloser.(*zlib.Writer).Reset(w)
	return pw, nil
}

func (c *deflateCompressor) Decompress(r io.Reader) (io.Reader, error) {
	return zlib.NewReader(r)
}

func (c *deflateCompressor) Name() string {
	return DeflateName
}
