package httpwire

import (
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-serve/api"
	"github.com/momentics/hioload-serve/pool"
)

// chunkReader hands out at most step bytes per Read.
type chunkReader struct {
	data []byte
	step int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.step
	if n > len(p) {
		n = len(p)
	}
	if n > len(c.data) {
		n = len(c.data)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func TestReaderAssemblesChunkedInput(t *testing.T) {
	raw := "POST /x HTTP/1.1\r\nContent-Length: 11\r\n\r\nhello world"
	rd := NewReader(&chunkReader{data: []byte(raw), step: 3}, 16, 1024, nil)
	req, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(req.Body))

	_, err = rd.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderGrowsToCeiling(t *testing.T) {
	body := strings.Repeat("a", 5000)
	raw := "PUT /big HTTP/1.1\r\nContent-Length: 5000\r\n\r\n" + body
	rd := NewReader(strings.NewReader(raw), 64, 8192, nil)
	req, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, body, string(req.Body))
	assert.LessOrEqual(t, rd.Cap(), 8192)
}

func TestReaderRejectsOversizeContentLength(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nContent-Length: 100000\r\n\r\npartial"
	rd := NewReader(strings.NewReader(raw), 64, 4096, nil)
	_, err := rd.Next()
	assert.ErrorIs(t, err, ErrRequestTooLarge)
	assert.LessOrEqual(t, rd.Cap(), 4096)
}

func TestReaderRejectsOversizeHeaders(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nX-Pad: " + strings.Repeat("p", 10000) + "\r\n\r\n"
	rd := NewReader(strings.NewReader(raw), 64, 4096, nil)
	_, err := rd.Next()
	assert.ErrorIs(t, err, ErrRequestTooLarge)
	assert.Equal(t, 4096, rd.Cap())
}

func TestReaderDoesNotDispatchEarly(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	rd := NewReader(server, 0, 0, nil)
	done := make(chan *api.Request, 1)
	go func() {
		req, err := rd.Next()
		if err == nil {
			done <- req
		}
		close(done)
	}()

	_, err := client.Write([]byte("POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\n01234"))
	require.NoError(t, err)

	select {
	case <-done:
		t.Fatal("request dispatched before the declared body arrived")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = client.Write([]byte("56789"))
	require.NoError(t, err)

	select {
	case req := <-done:
		require.NotNil(t, req)
		assert.Equal(t, "0123456789", string(req.Body))
	case <-time.After(2 * time.Second):
		t.Fatal("request not dispatched after body completed")
	}
}

func TestReaderKeepsLeftoverForNextRequest(t *testing.T) {
	raw := "GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\nContent-Length: 2\r\n\r\nokEXTRA"
	rd := NewReader(strings.NewReader(raw), 0, 0, nil)

	a, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, "/a", a.Path)

	b, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, "/b", b.Path)
	assert.Equal(t, "ok", string(b.Body))
	assert.Equal(t, []byte("EXTRA"), rd.Buffered())
}

func TestReaderUnexpectedEOF(t *testing.T) {
	rd := NewReader(strings.NewReader("GET / HTTP/1.1\r\nHost"), 0, 0, nil)
	_, err := rd.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReaderPooledBuffer(t *testing.T) {
	p := pool.NewBytePool(32)
	rd := NewReader(bytes.NewReader([]byte("GET /pooled HTTP/1.1\r\nHost: a\r\n\r\n")), 32, 1024, p)
	req, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, "/pooled", req.Path)
	rd.Release()
}
