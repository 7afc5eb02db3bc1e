package ics

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFoldLineShort(t *testing.T) {
	got := foldLine("SUMMARY:short")
	if len(got) != 1 || got[0] != "SUMMARY:short" {
		t.Fatalf("short line should not fold, got %v", got)
	}
}

func TestFoldLineLong(t *testing.T) {
	line := "DESCRIPTION:" + strings.Repeat("x", 300)
	parts := foldLine(line)

	if len(parts) < 2 {
		t.Fatal("long line should fold into multiple physical lines")
	}
	for i, p := range parts {
		if len(p) > foldWidth {
			t.Errorf("physical line %d is %d octets, max %d", i, len(p), foldWidth)
		}
		if i > 0 && !strings.HasPrefix(p, " ") {
			t.Errorf("continuation line %d does not start with a space", i)
		}
	}

	// Folding is reversible: strip one leading space per continuation.
	var unfolded strings.Builder
	unfolded.WriteString(parts[0])
	for _, p := range parts[1:] {
		unfolded.WriteString(p[1:])
	}
	if unfolded.String() != line {
		t.Error("unfolding the folded line did not restore the original")
	}
}

func TestFoldLineMultibyte(t *testing.T) {
	line := "SUMMARY:" + strings.Repeat("é", 100)
	for i, p := range foldLine(line) {
		if !utf8.ValidString(p) {
			t.Errorf("physical line %d splits a multi-byte character", i)
		}
		if len(p) > foldWidth {
			t.Errorf("physical line %d is %d octets", i, len(p))
		}
	}
}

func TestUnfoldLines(t *testing.T) {
	data := []byte("BEGIN:VCALENDAR\r\nDESCRIPTION:part one\r\n  continues with leading space kept\r\nSUMMARY:next\r\n\tTabbed continuation\r\nEND:VCALENDAR\r\n")
	lines := unfoldLines(data)

	want := []string{
		"BEGIN:VCALENDAR",
		"DESCRIPTION:part one continues with leading space kept",
		"SUMMARY:nextTabbed continuation",
		"END:VCALENDAR",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d logical lines, want %d", len(lines), len(want))
	}
	for i, w := range want {
		if lines[i].text != w {
			t.Errorf("line %d = %q, want %q", i, lines[i].text, w)
		}
	}
	if lines[0].num != 1 || lines[3].num != 6 {
		t.Errorf("line numbers not tracked: %d, %d", lines[0].num, lines[3].num)
	}
}

func TestUnfoldAcceptsBareLF(t *testing.T) {
	lines := unfoldLines([]byte("A:1\nB:2\n two\n"))
	if len(lines) != 2 || lines[1].text != "B:2two" {
		t.Fatalf("bare-LF input not unfolded: %+v", lines)
	}
}
