package ftp

import (
	"errors"
	"strings"

	"github.com/relaypath/ftp/listing"
)

// Ls implements spec.md §4.5 "ls": prefer STAT (cheaper, no data socket)
// and fall back permanently to LIST once the server proves it lacks STAT
// or is a known-broken implementation (Hummingbird).
func (s *Session) Ls(path string) ([]listing.Entry, error) {
	if s.useList.Load() {
		text, err := s.List(path)
		if err != nil {
			return nil, err
		}
		return s.parseAndNormalize(text), nil
	}

	line := "STAT"
	if path != "" {
		line = "STAT " + path
	}
	resp, err := s.d.Execute(line, nil)
	if err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) && (perr.Code == 500 || perr.Code == 502) {
			s.useList.Store(true)
			text, lerr := s.List(path)
			if lerr != nil {
				return nil, lerr
			}
			return s.parseAndNormalize(text), nil
		}
		return nil, err
	}

	if strings.Contains(s.System(), "hummingbird") {
		s.useList.Store(true)
		text, lerr := s.List(path)
		if lerr != nil {
			return nil, lerr
		}
		return s.parseAndNormalize(text), nil
	}

	return s.parseAndNormalize(resp.Text), nil
}

func (s *Session) parseAndNormalize(text string) []listing.Entry {
	entries := listing.ParseEntries(text, s.entryParsers)
	for i := range entries {
		entries[i].Name = s.normalize(entries[i].Name)
	}
	return entries
}

