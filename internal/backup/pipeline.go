package backup

import (
	"io"

	"github.com/dev-tams/sqlbackup/internal/compression"
)

type closeStack []io.Closer

func (cs *closeStack) add(c io.Closer) {
	*cs = append(*cs, c)
}

func (cs closeStack) closeAll() {
	for i := len(cs) - 1; i >= 0; i-- {
		_ = cs[i].Close()
	}
}

// gzipReader compresses src on the fly; the uncompressed bytes only ever
// exist in the pipe buffer.
func gzipReader(src io.Reader, closers *closeStack) io.Reader {
	pr, pw := io.Pipe()
	closers.add(pr)

	go func() {
		_, err := compression.Gzip(pw, src)
		_ = pw.CloseWithError(err)
	}()
	return pr
}
