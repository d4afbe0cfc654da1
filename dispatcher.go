package ftp

import (
	"log/slog"
	"net"
	"regexp"
	"strings"
	"sync"
)

// markSpec describes the "expects_mark" shape of spec.md §3: a command that
// expects a preliminary 1xx reply in Marks, whose later terminal reply
// (code Ignore) must be swallowed rather than delivered to the caller.
type markSpec struct {
	Marks  map[int]bool
	Ignore int
}

// transferMark is the mark expectation shared by RETR/STOR/APPE/LIST.
func transferMark() *markSpec {
	return &markSpec{Marks: map[int]bool{125: true, 150: true}, Ignore: 226}
}

type command struct {
	line   string
	mark   *markSpec
	result chan cmdResult
}

type cmdResult struct {
	resp *Response
	err  error
}

var authBypass = regexp.MustCompile(`(?i)^(feat|syst|user|pass)(\s|$)`)

func isAuthBypass(line string) bool { return authBypass.MatchString(line) }

// dispatcher implements the single-in-flight command queue of spec.md §4.3:
// one goroutine (monitor) owns queue/inProgress/ignoreNextCode and pairs
// each parsed Response with the head of the queue; every other goroutine
// only ever appends to the queue and waits on a per-command result channel.
// This is the channel-based realization of "single-threaded cooperative"
// dispatch the spec's design notes call for in place of an event emitter.
type dispatcher struct {
	host, port string
	user, pass string
	dialer     *net.Dialer
	logger     *slog.Logger

	onDisconnect func(error)
	onData       func(*Response)

	mu             sync.Mutex
	cc             *controlChannel
	queue          []*command
	inProgress     bool
	ignoreNextCode int

	authenticated  bool
	authenticating bool
	features       map[string]struct{}
	system         string
	transferType   byte
	closed         bool
}

func newDispatcher(host, port, user, pass string, dialer *net.Dialer, logger *slog.Logger) *dispatcher {
	return &dispatcher{
		host:   host,
		port:   port,
		user:   user,
		pass:   pass,
		dialer: dialer,
		logger: logger,
	}
}

// connect dials a fresh control connection, reads and discards the
// greeting (it is never paired with a queue entry, spec.md §3 invariant),
// and starts the response-pairing goroutine. Recreating the channel clears
// authenticated/features/system, mirroring spec.md §4.2.
func (d *dispatcher) connect() error {
	conn, err := d.dialer.Dial("tcp", net.JoinHostPort(d.host, d.port))
	if err != nil {
		return err
	}
	cc := newControlChannel(conn, d.logger)

	resp, ok := <-cc.Responses()
	if !ok {
		err := <-cc.Errs()
		cc.Close()
		return err
	}
	if resp.Code != 220 {
		cc.Close()
		return &ProtocolError{Command: "CONNECT", Code: resp.Code, Text: resp.Text}
	}

	d.mu.Lock()
	if d.cc != nil {
		d.cc.Close()
	}
	d.cc = cc
	d.authenticated = false
	d.features = nil
	d.system = ""
	d.transferType = 0
	d.mu.Unlock()

	go d.monitor(cc)
	return nil
}

func (d *dispatcher) ensureConnected() error {
	d.mu.Lock()
	closed := d.closed
	cc := d.cc
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if cc != nil {
		return nil
	}
	return d.connect()
}

// monitor pairs every response the channel produces with queue[0] until the
// channel fails, implementing spec.md §4.3's response-pairing algorithm.
func (d *dispatcher) monitor(cc *controlChannel) {
	for resp := range cc.Responses() {
		d.handleResponse(resp)
	}
	var err error
	select {
	case err = <-cc.Errs():
	default:
	}
	d.handleDisconnect(cc, err)
}

func (d *dispatcher) handleResponse(resp *Response) {
	if d.onData != nil {
		d.onData(resp)
	}

	d.mu.Lock()
	if len(d.queue) == 0 {
		d.mu.Unlock()
		return
	}
	cmd := d.queue[0]

	if resp.IsMark() {
		if cmd.mark == nil || !cmd.mark.Marks[resp.Code] {
			// Unexpected informational reply: drop without advancing.
			d.mu.Unlock()
			return
		}
		if cmd.mark.Ignore != 0 {
			d.ignoreNextCode = cmd.mark.Ignore
			d.mu.Unlock()
			cmd.result <- cmdResult{resp: resp}
			return
		}
		d.queue = d.queue[1:]
		d.inProgress = false
		d.mu.Unlock()
		cmd.result <- cmdResult{resp: resp}
		d.pump()
		return
	}

	if d.ignoreNextCode != 0 && resp.Code == d.ignoreNextCode {
		d.ignoreNextCode = 0
		d.queue = d.queue[1:]
		d.inProgress = false
		d.mu.Unlock()
		d.pump()
		return
	}

	d.queue = d.queue[1:]
	d.inProgress = false
	d.mu.Unlock()
	cmd.result <- cmdResult{resp: resp, err: asError(cmd.line, resp)}
	d.pump()
}

func (d *dispatcher) handleDisconnect(cc *controlChannel, err error) {
	if err == nil {
		err = &ProtocolError{Command: "CONNECTION", Text: "control connection closed"}
	}
	d.mu.Lock()
	if d.cc != cc {
		// Already superseded by a reconnect; nothing to flush.
		d.mu.Unlock()
		return
	}
	pending := d.queue
	d.queue = nil
	d.inProgress = false
	d.cc = nil
	onDisconnect := d.onDisconnect
	d.mu.Unlock()

	for _, cmd := range pending {
		cmd.result <- cmdResult{err: err}
	}
	if onDisconnect != nil {
		onDisconnect(err)
	}
}

func (d *dispatcher) pump() {
	d.mu.Lock()
	if d.inProgress || len(d.queue) == 0 || d.cc == nil {
		d.mu.Unlock()
		return
	}
	cmd := d.queue[0]
	d.inProgress = true
	cc := d.cc
	d.mu.Unlock()

	if err := cc.Send(cmd.line); err != nil {
		d.handleDisconnect(cc, err)
	}
}

// enqueueAndWait appends cmd to the queue, kicks the pump, and blocks for
// the single result the command will ever receive (spec.md §4.3).
func (d *dispatcher) enqueueAndWait(line string, mark *markSpec) (*Response, error) {
	cmd := &command{line: line, mark: mark, result: make(chan cmdResult, 1)}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	d.queue = append(d.queue, cmd)
	d.mu.Unlock()

	d.pump()
	r := <-cmd.result
	return r.resp, r.err
}

// Execute is the dispatcher's public entry point (spec.md §4.3 "execute").
// It reconnects if needed, runs the implicit auth chain on the first
// non-exempt command, then enqueues line.
func (d *dispatcher) Execute(line string, mark *markSpec) (*Response, error) {
	if err := d.ensureConnected(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	authed := d.authenticated
	d.mu.Unlock()

	if authed || isAuthBypass(line) {
		return d.enqueueAndWait(line, mark)
	}

	if err := d.EnsureAuthenticated(); err != nil {
		return nil, err
	}
	return d.enqueueAndWait(line, mark)
}

// EnsureAuthenticated runs the implicit auth chain if it has not already
// succeeded, serving both Execute's on-demand trigger and the Session's
// explicit Auth operation.
func (d *dispatcher) EnsureAuthenticated() error {
	if err := d.ensureConnected(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.authenticated {
		d.mu.Unlock()
		return nil
	}
	if d.authenticating {
		d.mu.Unlock()
		return ErrAlreadyAuthenticating
	}
	d.authenticating = true
	d.mu.Unlock()

	err := d.runAuthChain()

	d.mu.Lock()
	d.authenticating = false
	if err == nil {
		d.authenticated = true
	}
	d.mu.Unlock()
	return err
}

// runAuthChain implements spec.md §4.3.1.
func (d *dispatcher) runAuthChain() error {
	d.mu.Lock()
	needFeat := d.features == nil
	d.mu.Unlock()

	if needFeat {
		resp, err := d.enqueueAndWait("FEAT", nil)
		feats := map[string]struct{}{}
		if err == nil {
			feats = parseFeatureBody(resp.Text)
		}
		d.mu.Lock()
		d.features = feats
		d.mu.Unlock()
	}

	if resp, err := d.enqueueAndWait("SYST", nil); err == nil && resp.Code == 215 {
		d.mu.Lock()
		d.system = strings.ToLower(resp.Text)
		d.mu.Unlock()
	}

	userResp, err := d.enqueueAndWait("USER "+d.user, nil)
	if err != nil {
		return err
	}
	switch userResp.Code {
	case 230:
		// Logged in with USER alone.
	case 331, 332:
		passResp, err := d.enqueueAndWait("PASS "+d.pass, nil)
		if err != nil {
			return err
		}
		switch passResp.Code {
		case 230, 202:
		case 332:
			_, _ = d.enqueueAndWait(`ACCT ""`, nil)
			return ErrAccountRequired
		default:
			return &ProtocolError{Command: "PASS", Code: passResp.Code, Text: passResp.Text}
		}
	default:
		return &ProtocolError{Command: "USER", Code: userResp.Code, Text: userResp.Text}
	}

	if _, err := d.enqueueAndWait("TYPE I", nil); err != nil {
		return err
	}
	d.mu.Lock()
	d.transferType = 'I'
	d.mu.Unlock()
	return nil
}

// parseFeatureBody parses the body of a FEAT reply: drop the first and last
// lines, trim and lowercase what remains (spec.md §4.3.1 step 1).
func parseFeatureBody(text string) map[string]struct{} {
	lines := strings.Split(text, "\n")
	feats := map[string]struct{}{}
	if len(lines) <= 2 {
		return feats
	}
	for _, l := range lines[1 : len(lines)-1] {
		f := strings.ToLower(strings.TrimSpace(l))
		if f != "" {
			feats[f] = struct{}{}
		}
	}
	return feats
}

func (d *dispatcher) Features() map[string]struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]struct{}, len(d.features))
	for k := range d.features {
		out[k] = struct{}{}
	}
	return out
}

func (d *dispatcher) System() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.system
}

func (d *dispatcher) TransferType() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transferType
}

func (d *dispatcher) SetTransferType(t byte) {
	d.mu.Lock()
	d.transferType = t
	d.mu.Unlock()
}

func (d *dispatcher) Authenticated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.authenticated
}

// Close tears down the control connection and fails any queued commands.
func (d *dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	cc := d.cc
	d.cc = nil
	pending := d.queue
	d.queue = nil
	d.authenticated = false
	d.features = nil
	d.system = ""
	d.mu.Unlock()

	for _, cmd := range pending {
		cmd.result <- cmdResult{err: ErrClosed}
	}
	if cc != nil {
		return cc.Close()
	}
	return nil
}
