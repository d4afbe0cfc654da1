package ftp

import (
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/relaypath/ftp/internal/ratelimit"
	"github.com/relaypath/ftp/listing"
)

// Session is the client facade of spec.md §4.5: it composes a dispatcher,
// a passive data channel, and an event bus into the handful of operations
// callers actually need (auth, list, get, put, ls, rename, raw, keep_alive,
// destroy), plus the commands recovered from the original implementation
// in SPEC_FULL.md §8.
type Session struct {
	host, port string
	user, pass string
	timeout    time.Duration
	dialer     *net.Dialer
	logger     *slog.Logger

	limiter      *ratelimit.Limiter
	entryParsers []listing.Parser
	normalize    func(string) string

	d      *dispatcher
	events *eventBus

	useList      atomic.Bool
	transferring atomic.Bool

	keepAliveMu sync.Mutex
	keepAlive   *keepAliveLoop
}

// Dial opens a Session against addr ("host:port"), applying options over
// the spec.md §6 defaults (host "localhost", port 21, user "anonymous",
// pass "@anonymous", timeout 10 minutes). The control socket is opened
// eagerly; authentication happens lazily on the first command that needs
// it, or via an explicit Auth call (spec.md §3 "Lifecycle").
func Dial(addr string, options ...Option) (*Session, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	options = append([]Option{WithHost(host), WithPort(port)}, options...)
	return New(options...)
}

// New builds a Session from options alone (host/port default to
// "localhost:21"); most callers want Dial instead.
func New(options ...Option) (*Session, error) {
	s := &Session{
		host:         "localhost",
		port:         "21",
		user:         "anonymous",
		pass:         "@anonymous",
		timeout:      defaultPassiveIdleTimeout,
		dialer:       &net.Dialer{Timeout: 30 * time.Second},
		entryParsers: listing.DefaultParsers(),
		normalize:    norm.NFC.String,
		events:       newEventBus(),
	}

	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.d = newDispatcher(s.host, s.port, s.user, s.pass, s.dialer, s.logger)
	s.d.onDisconnect = func(err error) {
		s.events.emit("error", Event{Err: err})
	}
	s.d.onData = func(resp *Response) {
		s.events.emit("data", Event{Response: resp})
	}

	if err := s.d.connect(); err != nil {
		return nil, err
	}
	s.events.emit("connect", Event{})

	return s, nil
}

// On subscribes fn to Session events: "connect", "timeout", "error",
// "data", "progress" (spec.md §6).
func (s *Session) On(event string, fn func(Event)) { s.events.on(event, fn) }

// Auth runs the implicit authentication chain (FEAT, SYST, USER, PASS,
// TYPE I) if it has not already succeeded. Calling Auth while a chain
// triggered by a previous command is already running returns
// ErrAlreadyAuthenticating (spec.md §4.3.1).
func (s *Session) Auth() error { return s.d.EnsureAuthenticated() }

// Authenticated reports whether the implicit auth chain has completed.
func (s *Session) Authenticated() bool { return s.d.Authenticated() }

// HasFeat reports whether the server's FEAT reply advertised f
// (case-insensitively). It triggers Auth if the session has not
// authenticated yet, since features are only populated by the auth chain.
func (s *Session) HasFeat(f string) bool {
	if err := s.d.EnsureAuthenticated(); err != nil {
		return false
	}
	_, ok := s.d.Features()[strings.ToLower(f)]
	return ok
}

// System returns the cached SYST reply text, or "" if Auth has not run.
func (s *Session) System() string { return s.d.System() }

// BandwidthLimit returns the configured Get/Put throttle in bytes per
// second, or 0 if WithBandwidthLimit was never set.
func (s *Session) BandwidthLimit() int64 { return s.limiter.Rate() }

// SetType issues TYPE t ('A' or 'I'), skipping the round trip if it is
// already the cached transfer type (spec.md §4.5 "set_type").
func (s *Session) SetType(t byte) error {
	if s.d.TransferType() == t {
		return nil
	}
	if _, err := s.d.Execute("TYPE "+string(t), nil); err != nil {
		return err
	}
	s.d.SetTransferType(t)
	return nil
}

// Raw sends cmd (and any args, space-joined) as a single command line and
// returns the server's reply verbatim (spec.md §4.5 "raw").
func (s *Session) Raw(cmd string, args ...string) (*Response, error) {
	line := cmd
	if len(args) > 0 {
		line = cmd + " " + strings.Join(args, " ")
	}
	return s.d.Execute(strings.TrimSpace(line), nil)
}

// Rename issues RNFR then RNTO, propagating the first error encountered
// (spec.md §4.5 "rename").
func (s *Session) Rename(from, to string) error {
	if _, err := s.d.Execute("RNFR "+from, nil); err != nil {
		return err
	}
	_, err := s.d.Execute("RNTO "+to, nil)
	return err
}

// Size returns the remote file size via SIZE (SPEC_FULL.md §8).
func (s *Session) Size(path string) (int64, error) {
	resp, err := s.d.Execute("SIZE "+path, nil)
	if err != nil {
		return 0, err
	}
	n, perr := strconv.ParseInt(strings.TrimSpace(resp.Text), 10, 64)
	if perr != nil {
		return 0, &ParseError{Reason: "invalid SIZE reply: " + resp.Text}
	}
	return n, nil
}

// ModTime returns the remote file's modification time via MDTM
// (SPEC_FULL.md §8).
func (s *Session) ModTime(path string) (time.Time, error) {
	resp, err := s.d.Execute("MDTM "+path, nil)
	if err != nil {
		return time.Time{}, err
	}
	t, perr := time.Parse("20060102150405", strings.TrimSpace(resp.Text))
	if perr != nil {
		return time.Time{}, &ParseError{Reason: "invalid MDTM reply: " + resp.Text}
	}
	return t, nil
}

// Delete removes a remote file via DELE (SPEC_FULL.md §8).
func (s *Session) Delete(path string) error {
	_, err := s.d.Execute("DELE "+path, nil)
	return err
}

// MakeDir creates a remote directory via MKD (SPEC_FULL.md §8).
func (s *Session) MakeDir(path string) error {
	_, err := s.d.Execute("MKD "+path, nil)
	return err
}

// RemoveDir removes a remote directory via RMD (SPEC_FULL.md §8).
func (s *Session) RemoveDir(path string) error {
	_, err := s.d.Execute("RMD "+path, nil)
	return err
}

// CurrentDir returns the working directory via PWD (SPEC_FULL.md §8),
// parsing the quoted path the way the teacher repo's directory.go does.
func (s *Session) CurrentDir() (string, error) {
	resp, err := s.d.Execute("PWD", nil)
	if err != nil {
		return "", err
	}
	start := strings.Index(resp.Text, "\"")
	if start == -1 {
		return "", &ParseError{Reason: "invalid PWD reply: " + resp.Text}
	}
	end := strings.Index(resp.Text[start+1:], "\"")
	if end == -1 {
		return "", &ParseError{Reason: "invalid PWD reply: " + resp.Text}
	}
	return resp.Text[start+1 : start+1+end], nil
}

// Abort sends ABOR. RFC 959's abort sequence is inherently racy against an
// in-flight data transfer; this is offered best-effort (SPEC_FULL.md §8)
// rather than pretending to synchronize with a transfer in progress.
func (s *Session) Abort() error {
	_, err := s.d.Execute("ABOR", nil)
	return err
}

// Destroy closes the control and (if any) passive sockets, stops the
// keep-alive timer, and resets authentication state (spec.md §4.5
// "destroy").
func (s *Session) Destroy() error {
	s.stopKeepAlive()
	return s.d.Close()
}
