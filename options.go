package ftp

import (
	"log/slog"
	"time"

	"github.com/relaypath/ftp/internal/ratelimit"
	"github.com/relaypath/ftp/listing"
)

// Option configures a Session at construction. Adapted from the teacher
// repo's functional-option pattern (options.go), retargeted from *Client to
// *Session.
type Option func(*Session) error

// WithHost sets the server hostname. Default "localhost" (spec.md §6).
func WithHost(host string) Option {
	return func(s *Session) error { s.host = host; return nil }
}

// WithPort sets the control port. Default 21 (spec.md §6).
func WithPort(port string) Option {
	return func(s *Session) error { s.port = port; return nil }
}

// WithUser sets the login username. Default "anonymous" (spec.md §6).
func WithUser(user string) Option {
	return func(s *Session) error { s.user = user; return nil }
}

// WithPassword sets the login password. Default "@anonymous" (spec.md §6).
func WithPassword(pass string) Option {
	return func(s *Session) error { s.pass = pass; return nil }
}

// WithUseList forces Ls to always use LIST instead of probing STAT first
// (spec.md §6 "useList").
func WithUseList() Option {
	return func(s *Session) error { s.useList.Store(true); return nil }
}

// WithTimeout sets the passive-socket idle timeout. Default 10 minutes
// (spec.md §6 "timeout", 600000ms).
func WithTimeout(timeout time.Duration) Option {
	return func(s *Session) error { s.timeout = timeout; return nil }
}

// WithDialTimeout bounds how long Dial waits to establish the control
// connection. This is ambient connection-management the distilled spec is
// silent on; it follows the teacher's WithTimeout applied to c.dialer.
func WithDialTimeout(timeout time.Duration) Option {
	return func(s *Session) error { s.dialer.Timeout = timeout; return nil }
}

// WithLogger sets the slog.Logger used for command/response tracing. The
// zero value logs nothing, matching the teacher's no-op default in Dial.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) error { s.logger = logger; return nil }
}

// WithBandwidthLimit throttles Get/Put transfers to bytesPerSecond using
// the teacher repo's token-bucket internal/ratelimit package.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *Session) error {
		s.limiter = ratelimit.New(bytesPerSecond)
		return nil
	}
}

// WithEntryParser overrides the default listing.Parser chain used by Ls,
// for callers who want to supply their own parse_entries implementation
// (spec.md §1 treats this as an external collaborator).
func WithEntryParser(p listing.Parser) Option {
	return func(s *Session) error { s.entryParsers = []listing.Parser{p}; return nil }
}

// WithNormalizer overrides the default Unicode-NFC normalization
// (spec.md §1's external "nfc" collaborator) applied to entry names
// returned by Ls.
func WithNormalizer(fn func(string) string) Option {
	return func(s *Session) error { s.normalize = fn; return nil }
}
