package ftp

import (
	"fmt"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pasvHandler wires a PASV reply to a freshly listening data socket and
// returns a function the caller uses to accept the resulting data
// connection, grounded on the teacher repo's EPSV/PASV fallback test.
func pasvHandler(t *testing.T, ms *mockServer) func() net.Conn {
	t.Helper()
	dl, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ms.dataListener = dl

	_, portStr, _ := net.SplitHostPort(dl.Addr().String())
	var port int
	_, _ = fmt.Sscanf(portStr, "%d", &port)
	p1, p2 := port/256, port%256

	ms.handlers["PASV"] = func(c *textproto.Conn, args string) {
		_ = c.PrintfLine("227 Entering Passive Mode (127,0,0,1,%d,%d).", p1, p2)
	}

	return func() net.Conn {
		conn, err := dl.Accept()
		require.NoError(t, err)
		return conn
	}
}

func TestSession_Get(t *testing.T) {
	ms := newMockServer(t)
	accept := pasvHandler(t, ms)
	ms.handlers["SIZE"] = func(c *textproto.Conn, args string) {
		_ = c.PrintfLine("213 5")
	}
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		_ = c.PrintfLine("150 Opening data connection.")
		go func() {
			dconn := accept()
			_, _ = dconn.Write([]byte("hello"))
			dconn.Close()
		}()
		time.Sleep(20 * time.Millisecond)
		_ = c.PrintfLine("226 Transfer complete.")
	}
	ms.start()
	defer ms.stop()

	s, err := Dial(ms.addr, WithTimeout(time.Second))
	require.NoError(t, err)
	defer s.Destroy()

	dir := t.TempDir()
	dst := filepath.Join(dir, "out.bin")
	require.NoError(t, s.Get("remote.bin", dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestSession_Put(t *testing.T) {
	ms := newMockServer(t)
	accept := pasvHandler(t, ms)
	received := make(chan []byte, 1)
	ms.handlers["STOR"] = func(c *textproto.Conn, args string) {
		_ = c.PrintfLine("150 Ready to receive.")
		dconn := accept()
		buf := make([]byte, 64)
		n, _ := dconn.Read(buf)
		received <- buf[:n]
		dconn.Close()
		_ = c.PrintfLine("226 Transfer complete.")
	}
	ms.start()
	defer ms.stop()

	s, err := Dial(ms.addr, WithTimeout(time.Second))
	require.NoError(t, err)
	defer s.Destroy()

	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, s.Put(src, "remote.bin"))

	select {
	case got := <-received:
		require.Equal(t, "payload", string(got))
	case <-time.After(time.Second):
		t.Fatal("server never received data")
	}
}

func TestSession_Put_MissingLocalFile(t *testing.T) {
	ms := newMockServer(t)
	ms.start()
	defer ms.stop()

	s, err := Dial(ms.addr)
	require.NoError(t, err)
	defer s.Destroy()

	err = s.Put(filepath.Join(t.TempDir(), "missing.bin"), "remote.bin")
	require.Error(t, err)
	var uerr *UsageError
	require.ErrorAs(t, err, &uerr)
}

func TestSession_Ls_FallsBackToListOn500(t *testing.T) {
	ms := newMockServer(t)
	accept := pasvHandler(t, ms)
	ms.handlers["STAT"] = func(c *textproto.Conn, args string) {
		_ = c.PrintfLine("500 unknown command")
	}
	ms.handlers["LIST"] = func(c *textproto.Conn, args string) {
		_ = c.PrintfLine("150 Here comes the listing.")
		go func() {
			dconn := accept()
			_, _ = dconn.Write([]byte("-rw-r--r-- 1 a a 3 Jan 01 00:00 x.txt\n"))
			dconn.Close()
		}()
		time.Sleep(20 * time.Millisecond)
		_ = c.PrintfLine("226 Transfer complete.")
	}
	ms.start()
	defer ms.stop()

	s, err := Dial(ms.addr, WithTimeout(time.Second))
	require.NoError(t, err)
	defer s.Destroy()

	entries, err := s.Ls("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "x.txt", entries[0].Name)
	require.True(t, s.useList.Load())
}

func TestSession_TransferInProgress(t *testing.T) {
	ms := newMockServer(t)
	accept := pasvHandler(t, ms)
	block := make(chan struct{})
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		_ = c.PrintfLine("150 Opening data connection.")
		dconn := accept()
		<-block
		dconn.Close()
		_ = c.PrintfLine("226 Transfer complete.")
	}
	ms.start()
	defer ms.stop()

	s, err := Dial(ms.addr, WithTimeout(time.Second))
	require.NoError(t, err)
	defer s.Destroy()

	done := make(chan error, 1)
	go func() {
		done <- s.Get("remote.bin", filepath.Join(t.TempDir(), "out.bin"))
	}()
	time.Sleep(30 * time.Millisecond)

	_, err = s.List("/")
	require.ErrorIs(t, err, ErrTransferInProgress)

	close(block)
	require.NoError(t, <-done)
}

// TestSession_Get_IdleTimeout exercises spec.md §8 scenario S4: a data
// socket that sits idle past the passive timeout must fail the transfer
// with TimeoutError and raise a Session "timeout" event.
func TestSession_Get_IdleTimeout(t *testing.T) {
	ms := newMockServer(t)
	accept := pasvHandler(t, ms)
	ms.handlers["SIZE"] = func(c *textproto.Conn, args string) {
		_ = c.PrintfLine("213 5")
	}
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		_ = c.PrintfLine("150 Opening data connection.")
		go func() {
			dconn := accept()
			time.Sleep(200 * time.Millisecond)
			dconn.Close()
		}()
	}
	ms.start()
	defer ms.stop()

	s, err := Dial(ms.addr, WithTimeout(30*time.Millisecond))
	require.NoError(t, err)
	defer s.Destroy()

	var gotTimeoutEvent atomic.Bool
	s.On("timeout", func(Event) { gotTimeoutEvent.Store(true) })

	err = s.Get("remote.bin", filepath.Join(t.TempDir(), "out.bin"))
	require.Error(t, err)
	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, "Passive socket timeout", terr.Reason)
	require.True(t, gotTimeoutEvent.Load())
}
