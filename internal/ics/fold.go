package ics

import (
	"strings"
	"unicode/utf8"
)

// foldWidth is the maximum number of octets per physical line, excluding
// the CRLF terminator (RFC 5545 §3.1).
const foldWidth = 75

// foldLine wraps a single logical property line into physical lines of at
// most foldWidth octets. Continuation lines begin with exactly one space,
// which counts toward their width. Breaks are moved back to the nearest
// UTF-8 rune boundary so a multi-byte character is never split.
func foldLine(line string) []string {
	if len(line) <= foldWidth {
		return []string{line}
	}

	var out []string
	rest := line
	for len(rest) > foldWidth {
		cut := foldWidth
		for cut > 1 && !utf8.RuneStart(rest[cut]) {
			cut--
		}
		out = append(out, rest[:cut])
		rest = " " + rest[cut:]
	}
	out = append(out, rest)
	return out
}

// logicalLine is one unfolded property line together with the physical
// line number it started on, for error reporting.
type logicalLine struct {
	text string
	num  int
}

// unfoldLines reverses folding: physical lines beginning with a space or
// tab are continuations of the previous line with that one marker byte
// stripped. Both CRLF and bare LF terminators are accepted on input.
func unfoldLines(data []byte) []logicalLine {
	raw := strings.Split(string(data), "\n")
	var out []logicalLine
	for i, ln := range raw {
		ln = strings.TrimSuffix(ln, "\r")
		if ln == "" {
			continue
		}
		if (ln[0] == ' ' || ln[0] == '\t') && len(out) > 0 {
			out[len(out)-1].text += ln[1:]
			continue
		}
		out = append(out, logicalLine{text: ln, num: i + 1})
	}
	return out
}
