package ftp

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadResponse_SingleLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("220 Service ready\r\n"))
	resp, err := ResponseParser{}.ReadResponse(r)
	require.NoError(t, err)
	require.Equal(t, 220, resp.Code)
	require.Equal(t, "Service ready", resp.Text)
}

func TestReadResponse_MultiLine(t *testing.T) {
	raw := "211-Features:\r\n UTF8\r\n EPSV\r\n211 End\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	resp, err := ResponseParser{}.ReadResponse(r)
	require.NoError(t, err)
	require.Equal(t, 211, resp.Code)
	require.Equal(t, "Features:\n UTF8\n EPSV\nEnd", resp.Text)
}

func TestReadResponse_BareLF(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("230 logged in\n"))
	resp, err := ResponseParser{}.ReadResponse(r)
	require.NoError(t, err)
	require.Equal(t, 230, resp.Code)
}

func TestReadResponse_DiscardsMalformedLine(t *testing.T) {
	raw := "garbage preamble\r\n220 ready\r\n"
	r := bufio.NewReader(strings.NewReader(raw))
	resp, err := ResponseParser{}.ReadResponse(r)
	require.NoError(t, err)
	require.Equal(t, 220, resp.Code)
}

// TestReadResponse_ChunkBoundaryIndependence exercises testable property 8:
// feeding the exact same bytes through readers of very different buffer
// sizes must produce identical parsed responses, since bufio.Reader already
// hides the chunking of the underlying source.
func TestReadResponse_ChunkBoundaryIndependence(t *testing.T) {
	raw := "211-Features:\r\n UTF8\r\n EPSV\r\n211 End\r\n"
	for _, size := range []int{1, 2, 7, 4096} {
		r := bufio.NewReaderSize(strings.NewReader(raw), size)
		resp, err := ResponseParser{}.ReadResponse(r)
		require.NoError(t, err)
		require.Equal(t, 211, resp.Code)
		require.Equal(t, "Features:\n UTF8\n EPSV\nEnd", resp.Text)
	}
}

func TestResponse_IsMarkIsError(t *testing.T) {
	require.True(t, (&Response{Code: 150}).IsMark())
	require.False(t, (&Response{Code: 226}).IsMark())
	require.True(t, (&Response{Code: 550}).IsError())
	require.False(t, (&Response{Code: 230}).IsError())
}
