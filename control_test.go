package ftp

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestControlChannel_SendAndReceive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fmt.Fprint(conn, "220 ready\r\n")
		buf := make([]byte, 256)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if string(buf[:n]) == "NOOP\r\n" {
			fmt.Fprint(conn, "200 ok\r\n")
		}
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	cc := newControlChannel(conn, nil)
	defer cc.Close()

	greeting := <-cc.Responses()
	require.Equal(t, 220, greeting.Code)

	require.NoError(t, cc.Send("NOOP"))
	resp := <-cc.Responses()
	require.Equal(t, 200, resp.Code)
}

func TestControlChannel_ClosePropagatesErr(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	cc := newControlChannel(conn, nil)
	defer cc.Close()

	select {
	case _, ok := <-cc.Responses():
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("responses channel never closed")
	}
}
