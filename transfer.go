package ftp

import (
	"io"
	"os"

	"github.com/relaypath/ftp/internal/ratelimit"
)

// onTransferIdle builds the passive-channel idle callback for a single
// transfer: the idle connection has already closed itself by the time this
// runs, so all that's left is telling the Session about it (spec.md §4.4
// "emit a Session-level timeout"). The transfer itself observes the
// resulting closed-connection error and turns it into a TimeoutError via
// asTimeoutError.
func (s *Session) onTransferIdle() func() {
	return func() {
		s.events.emit("timeout", Event{})
	}
}

func (s *Session) passiveChannel() *passiveChannel {
	return &passiveChannel{d: s.d, dialer: s.dialer, timeout: s.timeout, onIdle: s.onTransferIdle()}
}

// asTimeoutError maps a data-socket idle timeout to spec.md §4.4/§7's
// "Passive socket timeout", leaving any other error (including nil)
// unchanged.
func asTimeoutError(err error) error {
	if isTimeout(err) {
		return &TimeoutError{Reason: "Passive socket timeout"}
	}
	return err
}

// beginTransfer enforces spec.md §4.4's one-transfer-at-a-time rule: a
// second Get/Put/List while one is already running fails fast with
// ErrTransferInProgress instead of queuing behind it.
func (s *Session) beginTransfer() error {
	if !s.transferring.CompareAndSwap(false, true) {
		return ErrTransferInProgress
	}
	return nil
}

func (s *Session) endTransfer() { s.transferring.Store(false) }

// Get downloads remotePath into localPath over a passive data connection,
// reporting progress through the "progress" event and honoring any
// bandwidth limit set via WithBandwidthLimit (spec.md §4.4 "get").
func (s *Session) Get(remotePath, localPath string) error {
	if err := s.beginTransfer(); err != nil {
		return err
	}
	defer s.endTransfer()

	if err := s.SetType('I'); err != nil {
		return err
	}

	total, haveSize := int64(0), false
	if n, err := s.Size(remotePath); err == nil {
		total, haveSize = n, true
	}

	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	pc := s.passiveChannel()
	conn, err := pc.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	mark := transferMark()
	resp, err := s.d.Execute("RETR "+remotePath, mark)
	if err != nil {
		return err
	}
	if !resp.IsMark() {
		return &ProtocolError{Command: "RETR", Code: resp.Code, Text: resp.Text}
	}

	src := ratelimit.NewReader(conn, s.limiter)
	pr := &ProgressReader{Reader: src, Callback: func(n int64) {
		s.events.emit("progress", Event{Progress: &ProgressEvent{
			Filename: remotePath, Action: "get", Transferred: n, Total: total, HasTotal: haveSize,
		}})
	}}

	_, err = io.Copy(f, pr)
	return asTimeoutError(err)
}

// Put uploads localPath to remotePath over a passive data connection,
// reporting progress through the "progress" event (spec.md §4.4 "put").
func (s *Session) Put(localPath, remotePath string) error {
	if err := s.beginTransfer(); err != nil {
		return err
	}
	defer s.endTransfer()

	if err := s.SetType('I'); err != nil {
		return err
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return &UsageError{Reason: "Local file doesn't exist."}
	}
	if info.IsDir() {
		return &UsageError{Reason: "Local path cannot be a directory"}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	pc := s.passiveChannel()
	conn, err := pc.open()
	if err != nil {
		return err
	}
	defer conn.Close()

	mark := transferMark()
	resp, err := s.d.Execute("STOR "+remotePath, mark)
	if err != nil {
		return err
	}
	if !resp.IsMark() {
		return &ProtocolError{Command: "STOR", Code: resp.Code, Text: resp.Text}
	}

	total := info.Size()
	dst := ratelimit.NewWriter(conn, s.limiter)
	pw := &ProgressWriter{Writer: dst, Callback: func(n int64) {
		s.events.emit("progress", Event{Progress: &ProgressEvent{
			Filename: remotePath, Action: "put", Transferred: n, Total: total, HasTotal: true,
		}})
	}}

	_, err = io.Copy(pw, f)
	return asTimeoutError(err)
}

// List returns the raw text of a LIST reply for path (spec.md §4.4 "list"),
// with no entry parsing applied. Ls layers parse_entries on top of this.
func (s *Session) List(path string) (string, error) {
	if err := s.beginTransfer(); err != nil {
		return "", err
	}
	defer s.endTransfer()

	pc := s.passiveChannel()
	conn, err := pc.open()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	line := "LIST"
	if path != "" {
		line = "LIST " + path
	}

	mark := transferMark()
	resp, err := s.d.Execute(line, mark)
	if err != nil {
		return "", err
	}
	if !resp.IsMark() {
		return "", &ProtocolError{Command: "LIST", Code: resp.Code, Text: resp.Text}
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return "", asTimeoutError(err)
	}
	return string(data), nil
}
