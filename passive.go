package ftp

import (
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// pasvReply matches the PASV reply body: h1,h2,h3,h4,p1,p2. Groups allow a
// leading '-' per spec.md §4.4 step 2, for servers that (incorrectly) sign
// an octet.
var pasvReply = regexp.MustCompile(`([-\d]+,[-\d]+,[-\d]+,[-\d]+),([-\d]+),([-\d]+)`)

const defaultPassiveIdleTimeout = 10 * time.Minute

// parsePasvReply implements spec.md §4.4 steps 2-3.
func parsePasvReply(text string) (host string, port int, err error) {
	m := pasvReply.FindStringSubmatch(text)
	if m == nil {
		return "", 0, &ParseError{Reason: "Bad passive host/port combination"}
	}
	host = strings.ReplaceAll(m[1], ",", ".")
	p1, err1 := strconv.Atoi(m[2])
	p2, err2 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil {
		return "", 0, &ParseError{Reason: "Bad passive host/port combination"}
	}
	port = (p1&255)*256 + (p2 & 255)
	return host, port, nil
}

// idleConn wraps a net.Conn and refreshes a read/write deadline on every
// operation, so that the connection errors with a timeout once it has sat
// idle for `timeout`, without needing a separate watchdog goroutine.
// Adapted from the teacher repo's deadlineConn (conn.go).
type idleConn struct {
	net.Conn
	timeout time.Duration
	onIdle  func()
}

func (c *idleConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	n, err := c.Conn.Read(p)
	if isTimeout(err) {
		c.Conn.Close()
		if c.onIdle != nil {
			c.onIdle()
		}
	}
	return n, err
}

func (c *idleConn) Write(p []byte) (int, error) {
	if c.timeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	n, err := c.Conn.Write(p)
	if isTimeout(err) {
		c.Conn.Close()
		if c.onIdle != nil {
			c.onIdle()
		}
	}
	return n, err
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// passiveChannel implements spec.md §4.4: negotiate PASV, open the data
// socket, and pair it with the RETR/STOR/LIST mark.
type passiveChannel struct {
	d       *dispatcher
	dialer  *net.Dialer
	timeout time.Duration
	onIdle  func()
}

// open negotiates PASV and returns a connected, idle-timeout-guarded data
// socket. It does not issue the transfer command; callers pair the socket
// with RETR/STOR/LIST themselves via transferMark().
func (p *passiveChannel) open() (net.Conn, error) {
	resp, err := p.d.Execute("PASV", nil)
	if err != nil {
		return nil, err
	}
	host, port, err := parsePasvReply(resp.Text)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := p.dialer.Dial("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, errors.Join(err, errors.New("ftp: connection refused opening passive data socket — probably trying a PASV operation while one is in progress"))
		}
		return nil, err
	}

	timeout := p.timeout
	if timeout <= 0 {
		timeout = defaultPassiveIdleTimeout
	}
	return &idleConn{Conn: conn, timeout: timeout, onIdle: p.onIdle}, nil
}
