package compression

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/stretchr/testify/require"
)

func TestNewWriter_Gzip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "gzip")
	require.NoError(t, err)
	original := []byte("hello gzip world")
	_, err = w.Write(original)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, original, out)
}

func TestNewWriter_Bzip2(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "bzip2")
	require.NoError(t, err)
	original := []byte("hello bzip2 world")
	_, err = w.Write(original)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := bzip2.NewReader(&buf, nil)
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, original, out)
}

func TestNewWriter_None(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "none")
	require.NoError(t, err)
	original := []byte("plain text passthrough")
	_, err = w.Write(original)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Equal(t, string(original), buf.String())
}

func TestNewWriter_Unsupported(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewWriter(&buf, "lzma")
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	for _, codec := range []string{"gzip", "bzip2", "none", ""} {
		var buf bytes.Buffer
		w, err := NewWriter(&buf, codec)
		require.NoError(t, err)
		original := []byte("round trip payload for " + codec)
		_, err = w.Write(original)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		r, err := NewReader(&buf, codec)
		require.NoError(t, err)
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Equal(t, original, out)
		require.NoError(t, r.Close())
	}
}

func TestNewReader_Unsupported(t *testing.T) {
	_, err := NewReader(bytes.NewReader(nil), "lzma")
	require.Error(t, err)
}
