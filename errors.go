package ftp

import (
	"errors"
	"fmt"
)

// ProtocolError is a failure reply from the server (code >= 400), carrying
// the command that triggered it and the full reply text. Adapted from the
// teacher repo's errors.ProtocolError, generalized to the three error kinds
// the spec distinguishes (protocol, parse, usage).
type ProtocolError struct {
	Command string
	Code    int
	Text    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s: %d %s", e.Command, e.Code, e.Text)
}

// ParseError signals malformed data the server sent: an unparsable PASV
// reply, or a transfer command answered with neither a mark nor an error.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "ftp: " + e.Reason }

// UsageError signals a caller mistake rather than a server or network
// failure: a missing local file, a local path that is a directory, or a
// second Auth call while one is already in flight.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string { return "ftp: " + e.Reason }

// TimeoutError wraps an idle-timeout failure on the passive data socket.
type TimeoutError struct {
	Reason string
}

func (e *TimeoutError) Error() string { return "ftp: " + e.Reason }

var (
	// ErrAlreadyAuthenticating is returned by Auth when an authentication
	// chain triggered by a previous command or Auth call is still running.
	ErrAlreadyAuthenticating = &UsageError{Reason: "already authenticating"}

	// ErrClosed is returned by any in-flight or new command once Destroy
	// has torn down the session.
	ErrClosed = &UsageError{Reason: "session is closed"}

	// ErrAccountRequired surfaces the "332 need account" branch of the
	// login sequence. The reference implementation sends ACCT "" on this
	// branch but never resolves the originating callback, which the spec
	// calls out as a likely latent bug (spec.md §9, Open Questions); this
	// implementation instead fails the triggering command with this error.
	ErrAccountRequired = &ProtocolError{Command: "ACCT", Code: 332, Text: "server requires an account but none was supplied"}

	// ErrTransferInProgress is returned by Get/Put/List when another
	// passive transfer is already in flight on the same Session. Only one
	// passive transfer at a time is supported (spec.md §5).
	ErrTransferInProgress = &UsageError{Reason: "a passive transfer is already in progress on this session"}
)

// asError turns a failure Response into a *ProtocolError, or returns nil if
// the response did not fail.
func asError(command string, resp *Response) error {
	if resp == nil || !resp.IsError() {
		return nil
	}
	return &ProtocolError{Command: command, Code: resp.Code, Text: resp.Text}
}

// IsProtocolError reports whether err is (or wraps) a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
