package compression

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Reader streams the uncompressed contents of an artifact and counts the
// bytes handed out. The gzip checksum is only checked once the stream is
// read to EOF, so a truncated artifact fails on the final Read.
type Reader struct {
	gz *gzip.Reader
	n  int64
}

// Open wraps src; the caller closes the returned Reader, not src.
func Open(src io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	return &Reader{gz: gz}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.gz.Read(p)
	r.n += int64(n)
	return n, err
}

// Uncompressed reports the bytes read so far.
func (r *Reader) Uncompressed() int64 { return r.n }

func (r *Reader) Close() error { return r.gz.Close() }

// Gunzip decompresses src into dst and returns the uncompressed size.
func Gunzip(dst io.Writer, src io.Reader) (int64, error) {
	r, err := Open(src)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return r.Uncompressed(), fmt.Errorf("gunzip copy: %w", err)
	}
	return r.Uncompressed(), nil
}
