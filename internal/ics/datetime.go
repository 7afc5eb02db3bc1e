package ics

import (
	"fmt"
	"strings"
	"time"

	"evcal/internal/model"
)

const (
	layoutUTC   = "20060102T150405Z"
	layoutLocal = "20060102T150405"
	layoutDate  = "20060102"
)

// formatTemporal renders a TemporalValue as the property parameter suffix
// and the value text, e.g. (";TZID=America/Los_Angeles", "20250315T190000").
func formatTemporal(v model.TemporalValue) (params, value string) {
	switch v.Kind {
	case model.TemporalUTC:
		return "", v.Time.UTC().Format(layoutUTC)
	case model.TemporalZoned:
		if v.TZID == "" {
			// Floating local time: digits only, no qualifying parameter.
			return "", v.Time.Format(layoutLocal)
		}
		return ";TZID=" + v.TZID, v.Time.Format(layoutLocal)
	case model.TemporalDate:
		return ";VALUE=DATE", v.Time.Format(layoutDate)
	}
	return "", ""
}

// parseTemporal reconstructs a TemporalValue from a property's parameters
// and value. The tag is implied by what is present: TZID parameter, a
// VALUE=DATE parameter, or a trailing Z.
func parseTemporal(p property, line int) (model.TemporalValue, error) {
	val := strings.TrimSpace(p.value)
	if val == "" {
		return model.TemporalValue{}, parseErrorf(line, "%s: empty datetime value", p.name)
	}

	if tzid := p.param("TZID"); tzid != "" {
		t, err := time.Parse(layoutLocal, val)
		if err != nil {
			return model.TemporalValue{}, parseErrorf(line, "%s: bad zoned datetime %q", p.name, val)
		}
		return model.ZonedLocal(t, tzid), nil
	}

	if strings.EqualFold(p.param("VALUE"), "DATE") || !strings.Contains(val, "T") {
		t, err := time.Parse(layoutDate, val)
		if err != nil {
			return model.TemporalValue{}, parseErrorf(line, "%s: bad date %q", p.name, val)
		}
		return model.DateOnly(t), nil
	}

	if strings.HasSuffix(val, "Z") {
		t, err := time.Parse(layoutUTC, val)
		if err != nil {
			return model.TemporalValue{}, parseErrorf(line, "%s: bad UTC datetime %q", p.name, val)
		}
		return model.UTCInstant(t), nil
	}

	// Floating local time without a zone qualifier.
	t, err := time.Parse(layoutLocal, val)
	if err != nil {
		return model.TemporalValue{}, parseErrorf(line, "%s: bad datetime %q", p.name, val)
	}
	return model.ZonedLocal(t, ""), nil
}

// formatDuration renders a signed time span as an ISO-8601-style period,
// e.g. PT3H, -PT15M, P1DT2H. The zero duration is PT0S.
func formatDuration(d time.Duration) string {
	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	b.WriteByte('P')

	total := int64(d / time.Second)
	days := total / 86400
	hours := total % 86400 / 3600
	mins := total % 3600 / 60
	secs := total % 60

	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if hours > 0 || mins > 0 || secs > 0 || days == 0 {
		b.WriteByte('T')
		if hours > 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if mins > 0 {
			fmt.Fprintf(&b, "%dM", mins)
		}
		if secs > 0 || (days == 0 && hours == 0 && mins == 0) {
			fmt.Fprintf(&b, "%dS", secs)
		}
	}
	return b.String()
}

// parseICSDuration parses the duration grammar emitted by formatDuration
// plus the W (weeks) designator accepted on input.
func parseICSDuration(s string, line int) (time.Duration, error) {
	orig := s
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") {
		return 0, parseErrorf(line, "bad duration %q: missing P", orig)
	}
	s = s[1:]

	var d time.Duration
	inTime := false
	n := 0
	digits := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			n = n*10 + int(c-'0')
			digits = true
			continue
		}
		if c == 'T' {
			if digits {
				return 0, parseErrorf(line, "bad duration %q", orig)
			}
			inTime = true
			continue
		}
		var unit time.Duration
		switch {
		case c == 'W' && !inTime:
			unit = 7 * 24 * time.Hour
		case c == 'D' && !inTime:
			unit = 24 * time.Hour
		case c == 'H' && inTime:
			unit = time.Hour
		case c == 'M' && inTime:
			unit = time.Minute
		case c == 'S' && inTime:
			unit = time.Second
		default:
			return 0, parseErrorf(line, "bad duration %q: unexpected %q", orig, string(c))
		}
		if !digits {
			return 0, parseErrorf(line, "bad duration %q: %q without digits", orig, string(c))
		}
		d += time.Duration(n) * unit
		n = 0
		digits = false
	}
	if digits {
		return 0, parseErrorf(line, "bad duration %q: trailing digits", orig)
	}
	if neg {
		d = -d
	}
	return d, nil
}
