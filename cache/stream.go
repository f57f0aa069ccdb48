package cache

import (
	"bytes"
	"io"
	"os"
)

// WriteStream is the composite write handle returned by Add: a
// file-backed prefix that spills into an in-memory overflow tail if
// the backing file ever fails a write (disk full, quota, permission
// revoked mid-stream). A spilled stream can never be committed, only
// read back for diagnostics or discarded.
type WriteStream struct {
	c    *Cache
	key  string
	path string
	file *os.File

	overflow  bytes.Buffer
	spilled   bool
	committed bool
	aborted   bool
}

func newFileStream(c *Cache, key, path string, f *os.File) *WriteStream {
	return &WriteStream{c: c, key: key, path: path, file: f}
}

func newMemoryStream(c *Cache, key string) *WriteStream {
	return &WriteStream{c: c, key: key, spilled: true}
}

// Write implements io.Writer. Once spilled, all further writes land in
// the memory buffer; Commit will refuse to finalize such a stream.
func (ws *WriteStream) Write(p []byte) (int, error) {
	if ws.spilled {
		return ws.overflow.Write(p)
	}
	n, err := ws.file.Write(p)
	if err != nil {
		ws.spilled = true
		m, _ := ws.overflow.Write(p[n:])
		return n + m, nil
	}
	return n, nil
}

// readBack returns whatever is currently readable from the stream,
// used when Commit fails so the caller can still inspect the payload.
func (ws *WriteStream) readBack() *ReadStream {
	if ws.file != nil {
		if _, err := ws.file.Seek(0, io.SeekStart); err == nil {
			return &ReadStream{file: ws.file}
		}
	}
	return &ReadStream{mem: bytes.NewReader(ws.overflow.Bytes())}
}

// ReadStream is a committed stream opened for reading, either backed
// by the final on-disk file or, after a failed commit, by the memory
// overflow buffer.
type ReadStream struct {
	file *os.File
	mem  *bytes.Reader
}

func (rs *ReadStream) Read(p []byte) (int, error) {
	if rs.file != nil {
		return rs.file.Read(p)
	}
	return rs.mem.Read(p)
}

// Close releases the underlying file, if any.
func (rs *ReadStream) Close() error {
	if rs.file != nil {
		return rs.file.Close()
	}
	return nil
}
