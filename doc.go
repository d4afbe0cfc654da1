// Package ftp implements an FTP client as described by RFC 959 and common
// extensions (FEAT, passive mode, MLST-adjacent feature negotiation).
//
// A Session owns a single control connection and serializes every command
// issued against it through an internal dispatcher: callers may invoke
// Session methods from multiple goroutines, but at most one command is ever
// in flight on the wire at a time, and commands complete in the order they
// were issued. Data transfers (Get, Put, List) open a passive-mode data
// connection per transfer; there is no support for active mode, TLS, or
// more than one passive transfer in flight at a time.
//
// A Session performs authentication lazily: the control socket is opened
// eagerly at construction, but FEAT/SYST/USER/PASS/TYPE I only run on the
// first command that needs them (or when Auth is called explicitly).
package ftp
