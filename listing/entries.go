// Package listing implements spec.md's external "parse_entries" collaborator:
// turning raw LIST/STAT text into structured file entries. The core client
// spec treats this as a pure function supplied by the caller; this package
// supplies a default implementation so the module works standalone, adapted
// from the teacher repo's directory.go listing parsers (Unix, DOS/Windows,
// and EPLF formats).
package listing

import (
	"strconv"
	"strings"
)

// Entry describes one line of a directory listing.
type Entry struct {
	Name   string
	Type   string // "file", "dir", "link", or "unknown"
	Size   int64
	Target string // symlink target, empty otherwise
	Raw    string
}

// Parser recognizes one listing line format.
type Parser interface {
	Parse(line string) (Entry, bool)
}

// UnixParser recognizes "ls -l"-style Unix listings, 8- or 9-field, with
// symbolic or numeric permissions.
type UnixParser struct{}

func (UnixParser) Parse(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 8 {
		return Entry{}, false
	}
	entry := Entry{Raw: line}
	if !parseUnixEntry(&entry, fields) {
		return Entry{}, false
	}
	return entry, true
}

// DOSParser recognizes Windows FTP server listings
// ("12-14-23  12:22PM  1037794 file.pdf" / "... <DIR> dirname").
type DOSParser struct{}

func (DOSParser) Parse(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 || !isDOSDate(fields[0]) {
		return Entry{}, false
	}
	entry := Entry{Raw: line}
	if !parseDOSEntry(&entry, fields) {
		return Entry{}, false
	}
	return entry, true
}

// EPLFParser recognizes Easily Parsed LIST Format lines ("+facts\tname").
type EPLFParser struct{}

func (EPLFParser) Parse(line string) (Entry, bool) {
	if !strings.HasPrefix(line, "+") {
		return Entry{}, false
	}
	entry := Entry{Raw: line}
	if !parseEPLFEntry(&entry, line) {
		return Entry{}, false
	}
	return entry, true
}

// DefaultParsers is the parser order ParseEntries tries: EPLF and DOS are
// unambiguous on their leading character/field, Unix is the fallback.
func DefaultParsers() []Parser {
	return []Parser{EPLFParser{}, DOSParser{}, UnixParser{}}
}

// ParseEntries parses a full LIST/STAT body (one entry per line) using
// parsers, or DefaultParsers if nil. Lines no parser recognizes still
// produce an Entry of Type "unknown" rather than being dropped, so a
// caller never silently loses a listing line.
func ParseEntries(text string, parsers []Parser) []Entry {
	if parsers == nil {
		parsers = DefaultParsers()
	}
	var entries []Entry
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(strings.TrimRight(line, "\r"))
		if trimmed == "" {
			continue
		}
		entries = append(entries, parseLine(trimmed, parsers))
	}
	return entries
}

func parseLine(line string, parsers []Parser) Entry {
	for _, p := range parsers {
		if entry, ok := p.Parse(line); ok {
			return entry
		}
	}
	return Entry{Raw: line, Name: line, Type: "unknown"}
}

func parseUnixEntry(entry *Entry, fields []string) bool {
	perms := fields[0]
	isSymbolic := len(perms) >= 1 && strings.ContainsRune("-dlbcps", rune(perms[0]))
	isNumeric := len(perms) >= 3 && len(perms) <= 4
	for _, ch := range perms {
		if ch < '0' || ch > '7' {
			isNumeric = false
			break
		}
	}
	if !isSymbolic && !isNumeric {
		return false
	}

	switch {
	case isSymbolic && perms[0] == 'd':
		entry.Type = "dir"
	case isSymbolic && perms[0] == 'l':
		entry.Type = "link"
	default:
		entry.Type = "file"
	}

	var sizeIdx, nameStartIdx int
	switch {
	case len(fields) >= 9:
		if _, err := parseSize(fields[4]); err == nil {
			sizeIdx, nameStartIdx = 4, 8
		} else if _, err := parseSize(fields[3]); err == nil {
			sizeIdx, nameStartIdx = 3, 7
		} else {
			return false
		}
	case len(fields) >= 8:
		if _, err := parseSize(fields[3]); err != nil {
			return false
		}
		sizeIdx, nameStartIdx = 3, 7
	default:
		return false
	}

	size, err := parseSize(fields[sizeIdx])
	if err != nil {
		return false
	}
	entry.Size = size

	fullName := strings.Join(fields[nameStartIdx:], " ")
	if entry.Type == "link" {
		if before, after, ok := strings.Cut(fullName, " -> "); ok {
			entry.Name, entry.Target = before, after
		} else {
			entry.Name = fullName
		}
	} else {
		entry.Name = fullName
	}
	return true
}

func parseDOSEntry(entry *Entry, fields []string) bool {
	if fields[2] == "<DIR>" {
		entry.Type = "dir"
		entry.Name = strings.Join(fields[3:], " ")
		return true
	}
	size, err := parseSize(fields[2])
	if err != nil {
		return false
	}
	entry.Type = "file"
	entry.Size = size
	entry.Name = strings.Join(fields[3:], " ")
	return true
}

func parseEPLFEntry(entry *Entry, line string) bool {
	line = strings.TrimPrefix(line, "+")
	idx := strings.IndexAny(line, "\t ")
	if idx == -1 {
		return false
	}
	facts := line[:idx]
	name := strings.TrimSpace(line[idx+1:])
	if name == "" {
		return false
	}
	entry.Name = name
	entry.Type = "file"
	for _, fact := range strings.Split(facts, ",") {
		if fact == "" {
			continue
		}
		switch fact[0] {
		case '/':
			entry.Type = "dir"
		case 's':
			if len(fact) > 1 {
				if size, err := parseSize(fact[1:]); err == nil {
					entry.Size = size
				}
			}
		}
	}
	return true
}

func isDOSDate(s string) bool {
	var parts []string
	switch {
	case strings.Contains(s, "-"):
		parts = strings.Split(s, "-")
	case strings.Contains(s, "/"):
		parts = strings.Split(s, "/")
	default:
		return false
	}
	if len(parts) != 3 {
		return false
	}
	for i, part := range parts {
		if len(part) < 1 || len(part) > 4 {
			return false
		}
		if i == 2 && len(part) != 2 && len(part) != 4 {
			return false
		}
		if i < 2 && len(part) > 2 {
			return false
		}
		for _, ch := range part {
			if ch < '0' || ch > '9' {
				return false
			}
		}
	}
	return true
}

func parseSize(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
