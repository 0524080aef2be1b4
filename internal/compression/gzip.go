package compression

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

// Gzip compresses everything read from src into dst and returns the number of
// uncompressed bytes consumed.
func Gzip(dst io.Writer, src io.Reader) (int64, error) {
	gz, err := gzip.NewWriterLevel(dst, gzip.DefaultCompression)
	if err != nil {
		return 0, err
	}

	n, copyErr := io.Copy(gz, src)
	// the trailer is only written on Close; a failed copy still releases the writer.
	closeErr := gz.Close()
	if copyErr != nil {
		return n, copyErr
	}
	return n, closeErr
}
