package compression

import "io"

// NewCascadeWriteCloser wraps a compressor and the underlying sink it writes
// into so a single Close() drains the compressor before closing the sink
// (e.g. a gzip.Writer sitting on top of a temp file or network stream).
func NewCascadeWriteCloser(compressor io.WriteCloser, underlying io.Closer) io.WriteCloser {
	return &cascadeWriteCloser{compressor: compressor, underlying: underlying}
}

type cascadeWriteCloser struct {
	compressor io.WriteCloser
	underlying io.Closer
}

func (c *cascadeWriteCloser) Write(p []byte) (int, error) {
	return c.compressor.Write(p)
}

func (c *cascadeWriteCloser) Close() error {
	err1 := c.compressor.Close()
	err2 := c.underlying.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
