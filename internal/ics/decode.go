package ics

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"evcal/internal/model"
)

// property is one unfolded content line split into name, parameters and
// value. The raw unfolded text is kept so unrecognized properties can be
// preserved verbatim.
type property struct {
	name   string
	params map[string]string
	value  string
	raw    string
	line   int
}

// param returns the named parameter value, or "" when absent. Parameter
// names are matched case-insensitively.
func (p property) param(name string) string {
	return p.params[strings.ToUpper(name)]
}

// Decode parses an iCalendar text into a CalendarDocument. It is the
// inverse of Encode for documents this codec produced, and it accepts
// foreign documents with properties in any order. Unrecognized event
// properties are preserved verbatim in Event.Extra.
//
// Decode reports structural problems (unbalanced BEGIN/END, missing
// required properties, malformed datetimes) as *ParseError with the
// physical line number. It does not enforce the data-model invariants;
// run Validate on the result for that.
func Decode(data []byte) (*model.CalendarDocument, error) {
	lines := unfoldLines(data)
	if len(lines) == 0 {
		return nil, parseErrorf(1, "empty input")
	}

	i := 0
	if !strings.EqualFold(lines[i].text, "BEGIN:VCALENDAR") {
		return nil, parseErrorf(lines[i].num, "expected BEGIN:VCALENDAR, found %q", lines[i].text)
	}
	i++

	doc := &model.CalendarDocument{}
	closed := false

	for i < len(lines) {
		ln := lines[i]
		p, err := parseProperty(ln)
		if err != nil {
			return nil, err
		}

		switch {
		case p.name == "END" && strings.EqualFold(p.value, "VCALENDAR"):
			i++
			closed = true
		case p.name == "BEGIN" && strings.EqualFold(p.value, "VEVENT"):
			ev, next, err := decodeEvent(lines, i+1)
			if err != nil {
				return nil, err
			}
			doc.Events = append(doc.Events, ev)
			i = next
		case p.name == "BEGIN":
			// Unknown component at calendar level (e.g. VTIMEZONE): skip it.
			next, err := skipComponent(lines, i+1, p.value, ln.num)
			if err != nil {
				return nil, err
			}
			i = next
		case p.name == "PRODID":
			doc.ProductID = UnescapeText(p.value)
			i++
		case p.name == "VERSION":
			if p.value != "2.0" {
				return nil, parseErrorf(ln.num, "unsupported VERSION %q, expected 2.0", p.value)
			}
			i++
		default:
			// CALSCALE, METHOD and any calendar-level extension lines carry
			// no information the model keeps.
			i++
		}

		if closed {
			break
		}
	}

	if !closed {
		last := lines[len(lines)-1]
		return nil, parseErrorf(last.num, "missing END:VCALENDAR")
	}
	if i < len(lines) {
		return nil, parseErrorf(lines[i].num, "unexpected content after END:VCALENDAR")
	}
	return doc, nil
}

// decodeEvent consumes lines[i:] until the matching END:VEVENT, returning
// the event and the index just past it.
func decodeEvent(lines []logicalLine, i int) (model.Event, int, error) {
	var ev model.Event
	var haveStamp, haveStart bool
	var haveEnd, haveDuration bool
	var haveSummary bool

	for i < len(lines) {
		ln := lines[i]
		p, err := parseProperty(ln)
		if err != nil {
			return ev, 0, err
		}

		switch p.name {
		case "END":
			if !strings.EqualFold(p.value, "VEVENT") {
				return ev, 0, parseErrorf(ln.num, "expected END:VEVENT, found END:%s", p.value)
			}
			switch {
			case ev.UID == "":
				return ev, 0, parseErrorf(ln.num, "VEVENT missing required property UID")
			case !haveStamp:
				return ev, 0, parseErrorf(ln.num, "VEVENT missing required property DTSTAMP")
			case !haveStart:
				return ev, 0, parseErrorf(ln.num, "VEVENT missing required property DTSTART")
			case !haveSummary:
				return ev, 0, parseErrorf(ln.num, "VEVENT missing required property SUMMARY")
			}
			return ev, i + 1, nil

		case "BEGIN":
			if strings.EqualFold(p.value, "VALARM") {
				alarm, next, err := decodeAlarm(lines, i+1)
				if err != nil {
					return ev, 0, err
				}
				ev.Alarms = append(ev.Alarms, alarm)
				i = next
				continue
			}
			next, err := skipComponent(lines, i+1, p.value, ln.num)
			if err != nil {
				return ev, 0, err
			}
			i = next
			continue

		case "UID":
			ev.UID = p.value
		case "DTSTAMP":
			t, err := time.Parse(layoutUTC, p.value)
			if err != nil {
				return ev, 0, parseErrorf(ln.num, "DTSTAMP: bad UTC datetime %q", p.value)
			}
			ev.CreatedAt = t
			haveStamp = true
		case "DTSTART":
			tv, err := parseTemporal(p, ln.num)
			if err != nil {
				return ev, 0, err
			}
			ev.Start = tv
			haveStart = true
		case "DTEND":
			if haveDuration {
				return ev, 0, parseErrorf(ln.num, "VEVENT carries both DTEND and DURATION")
			}
			tv, err := parseTemporal(p, ln.num)
			if err != nil {
				return ev, 0, err
			}
			ev.End = tv
			haveEnd = true
		case "DURATION":
			if haveEnd {
				return ev, 0, parseErrorf(ln.num, "VEVENT carries both DTEND and DURATION")
			}
			d, err := parseICSDuration(p.value, ln.num)
			if err != nil {
				return ev, 0, err
			}
			ev.Duration = &d
			haveDuration = true
		case "SUMMARY":
			ev.Summary = UnescapeText(p.value)
			haveSummary = true
		case "LOCATION":
			ev.Location = UnescapeText(p.value)
		case "DESCRIPTION":
			ev.Description = UnescapeText(p.value)
		case "URL":
			ev.URL = p.value
		case "ORGANIZER":
			ev.OrganizerName = UnescapeText(p.param("CN"))
			if rest, ok := strings.CutPrefix(p.value, "mailto:"); ok {
				ev.OrganizerEmail = rest
			}
		case "STATUS":
			ev.Status = model.EventStatus(strings.ToUpper(p.value))
		case "CLASS":
			ev.Class = model.Classification(strings.ToUpper(p.value))
		case "PRIORITY":
			n, err := strconv.Atoi(strings.TrimSpace(p.value))
			if err != nil {
				return ev, 0, parseErrorf(ln.num, "PRIORITY: bad integer %q", p.value)
			}
			ev.Priority = n
		case "CATEGORIES":
			for _, c := range splitEscaped(p.value, ',') {
				if c != "" {
					ev.Categories = append(ev.Categories, UnescapeText(c))
				}
			}
		case "IMAGE":
			ev.Images = append(ev.Images, p.value)
		case "ATTACH":
			ev.Attachments = append(ev.Attachments, model.Attachment{
				MimeType: p.param("FMTTYPE"),
				URI:      p.value,
			})
		case "CONFERENCE":
			ev.ConferenceLinks = append(ev.ConferenceLinks, model.ConferenceLink{
				Feature: p.param("FEATURE"),
				URI:     p.value,
			})
		case "GEO":
			geo, err := parseGeo(p.value, ln.num)
			if err != nil {
				return ev, 0, err
			}
			ev.Geo = geo
		case "RRULE":
			rule, err := parseRule(p.value, ln.num)
			if err != nil {
				if errors.Is(err, errRulePartUnknown) {
					// Rule uses grammar beyond what the model represents;
					// keep the whole line verbatim instead of losing parts.
					ev.Extra = append(ev.Extra, p.raw)
					break
				}
				return ev, 0, err
			}
			ev.Recurrence = rule
		default:
			ev.Extra = append(ev.Extra, p.raw)
		}
		i++
	}

	return ev, 0, parseErrorf(lines[len(lines)-1].num, "missing END:VEVENT")
}

func decodeAlarm(lines []logicalLine, i int) (model.Alarm, int, error) {
	var a model.Alarm
	haveTrigger := false

	for i < len(lines) {
		ln := lines[i]
		p, err := parseProperty(ln)
		if err != nil {
			return a, 0, err
		}

		switch p.name {
		case "END":
			if !strings.EqualFold(p.value, "VALARM") {
				return a, 0, parseErrorf(ln.num, "expected END:VALARM, found END:%s", p.value)
			}
			if !haveTrigger {
				return a, 0, parseErrorf(ln.num, "VALARM missing required property TRIGGER")
			}
			return a, i + 1, nil
		case "TRIGGER":
			d, err := parseICSDuration(p.value, ln.num)
			if err != nil {
				return a, 0, err
			}
			a.Trigger = d
			haveTrigger = true
		case "ACTION":
			a.Action = model.AlarmAction(strings.ToUpper(p.value))
		case "DESCRIPTION":
			a.Description = UnescapeText(p.value)
		case "BEGIN":
			return a, 0, parseErrorf(ln.num, "unexpected BEGIN:%s inside VALARM", p.value)
		}
		i++
	}

	return a, 0, parseErrorf(lines[len(lines)-1].num, "missing END:VALARM")
}

// skipComponent consumes an unrecognized BEGIN:<name> block, handling
// nesting of further components inside it.
func skipComponent(lines []logicalLine, i int, name string, beginLine int) (int, error) {
	depth := 1
	for i < len(lines) {
		p, err := parseProperty(lines[i])
		if err != nil {
			return 0, err
		}
		switch p.name {
		case "BEGIN":
			depth++
		case "END":
			depth--
			if depth == 0 {
				if !strings.EqualFold(p.value, name) {
					return 0, parseErrorf(lines[i].num, "expected END:%s, found END:%s", name, p.value)
				}
				return i + 1, nil
			}
		}
		i++
	}
	return 0, parseErrorf(beginLine, "missing END:%s", name)
}

// parseProperty splits one logical line into name, parameters and value.
// Parameter values may be double-quoted to protect ";" ":" "," characters.
func parseProperty(ln logicalLine) (property, error) {
	s := ln.text
	p := property{params: map[string]string{}, raw: s, line: ln.num}

	// Property name runs until the first ';' or ':'.
	nameEnd := strings.IndexAny(s, ";:")
	if nameEnd <= 0 {
		return p, parseErrorf(ln.num, "malformed content line %q", s)
	}
	p.name = strings.ToUpper(s[:nameEnd])
	s = s[nameEnd:]

	for strings.HasPrefix(s, ";") {
		s = s[1:]
		eq := strings.Index(s, "=")
		if eq <= 0 {
			return p, parseErrorf(ln.num, "malformed parameter in %q", ln.text)
		}
		key := strings.ToUpper(s[:eq])
		s = s[eq+1:]

		var val string
		if strings.HasPrefix(s, `"`) {
			end := strings.Index(s[1:], `"`)
			if end < 0 {
				return p, parseErrorf(ln.num, "unterminated quoted parameter in %q", ln.text)
			}
			val = s[1 : 1+end]
			s = s[2+end:]
		} else {
			end := strings.IndexAny(s, ";:")
			if end < 0 {
				return p, parseErrorf(ln.num, "parameter %s missing property value in %q", key, ln.text)
			}
			val = s[:end]
			s = s[end:]
		}
		p.params[key] = val
	}

	if !strings.HasPrefix(s, ":") {
		return p, parseErrorf(ln.num, "content line %q has no value", ln.text)
	}
	p.value = s[1:]
	return p, nil
}

func parseGeo(v string, line int) (*model.GeoPoint, error) {
	sep := ";"
	if !strings.Contains(v, ";") {
		// Some producers join the pair with a comma instead.
		sep = ","
	}
	parts := strings.SplitN(v, sep, 2)
	if len(parts) != 2 {
		return nil, parseErrorf(line, "GEO: expected lat%slon, found %q", sep, v)
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return nil, parseErrorf(line, "GEO: bad coordinates %q", v)
	}
	return &model.GeoPoint{Latitude: lat, Longitude: lon}, nil
}

// errRulePartUnknown marks an RRULE using grammar outside the modeled
// subset; the caller preserves the raw line instead of failing.
var errRulePartUnknown = errors.New("rrule part not modeled")

func parseRule(v string, line int) (*model.RecurrenceRule, error) {
	var r model.RecurrenceRule
	for _, part := range strings.Split(v, ";") {
		if part == "" {
			continue
		}
		key, val, found := strings.Cut(part, "=")
		if !found {
			return nil, parseErrorf(line, "RRULE: malformed component %q", part)
		}
		switch strings.ToUpper(key) {
		case "FREQ":
			freq := model.Frequency(strings.ToUpper(val))
			switch freq {
			case model.FreqDaily, model.FreqWeekly, model.FreqMonthly, model.FreqYearly:
				r.Freq = freq
			default:
				return nil, errRulePartUnknown
			}
		case "BYDAY":
			r.ByDay = strings.Split(strings.ToUpper(val), ",")
		case "BYMONTHDAY":
			for _, d := range strings.Split(val, ",") {
				n, err := strconv.Atoi(d)
				if err != nil {
					return nil, parseErrorf(line, "RRULE: bad BYMONTHDAY %q", d)
				}
				r.ByMonthDay = append(r.ByMonthDay, n)
			}
		case "BYMONTH":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, parseErrorf(line, "RRULE: bad BYMONTH %q", val)
			}
			r.ByMonth = n
		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, parseErrorf(line, "RRULE: bad COUNT %q", val)
			}
			r.Count = n
		case "UNTIL":
			t, err := time.Parse(layoutUTC, val)
			if err != nil {
				if t, err = time.Parse(layoutDate, val); err != nil {
					return nil, parseErrorf(line, "RRULE: bad UNTIL %q", val)
				}
			}
			r.Until = t.UTC()
		default:
			return nil, errRulePartUnknown
		}
	}
	if r.Freq == "" {
		return nil, parseErrorf(line, "RRULE: missing FREQ")
	}
	return &r, nil
}
