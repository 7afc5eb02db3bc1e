package ics

import (
	"fmt"
	"strconv"
	"strings"

	"evcal/internal/model"
)

// Encode serializes a CalendarDocument into RFC 5545 text: UTF-8, CRLF
// line endings, lines folded at 75 octets. The output is deterministic:
// the same document always encodes to the same byte sequence, with
// properties emitted in one fixed canonical order.
//
// The document is validated first; nothing is written for an invalid one.
func Encode(doc *model.CalendarDocument) ([]byte, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}

	lines := make([]string, 0, 8+16*len(doc.Events))
	lines = append(lines,
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:"+EscapeText(doc.ProductID),
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
	)

	for i := range doc.Events {
		lines = appendEvent(lines, &doc.Events[i])
	}

	lines = append(lines, "END:VCALENDAR")

	var b strings.Builder
	for _, ln := range lines {
		for _, phys := range foldLine(ln) {
			b.WriteString(phys)
			b.WriteString("\r\n")
		}
	}
	return []byte(b.String()), nil
}

func appendEvent(lines []string, ev *model.Event) []string {
	add := func(l string) { lines = append(lines, l) }

	add("BEGIN:VEVENT")
	add("UID:" + ev.UID)
	add("DTSTAMP:" + ev.CreatedAt.UTC().Format(layoutUTC))

	params, val := formatTemporal(ev.Start)
	add("DTSTART" + params + ":" + val)

	switch {
	case ev.End.IsSet():
		params, val = formatTemporal(ev.End)
		add("DTEND" + params + ":" + val)
	case ev.Duration != nil:
		add("DURATION:" + formatDuration(*ev.Duration))
	}

	add("SUMMARY:" + EscapeText(ev.Summary))
	if ev.Location != "" {
		add("LOCATION:" + EscapeText(ev.Location))
	}
	if ev.Description != "" {
		add("DESCRIPTION:" + EscapeText(ev.Description))
	}
	if ev.URL != "" {
		add("URL:" + ev.URL)
	}
	if line := organizerLine(ev); line != "" {
		add(line)
	}
	if ev.Status != "" {
		add("STATUS:" + string(ev.Status))
	}
	if ev.Class != "" {
		add("CLASS:" + string(ev.Class))
	}
	if ev.Priority > 0 {
		add("PRIORITY:" + strconv.Itoa(ev.Priority))
	}
	if len(ev.Categories) > 0 {
		escaped := make([]string, len(ev.Categories))
		for i, c := range ev.Categories {
			escaped[i] = EscapeText(c)
		}
		add("CATEGORIES:" + strings.Join(escaped, ","))
	}
	for _, img := range ev.Images {
		add("IMAGE;VALUE=URI:" + img)
	}
	for _, att := range ev.Attachments {
		if att.MimeType != "" {
			add("ATTACH;FMTTYPE=" + att.MimeType + ":" + att.URI)
		} else {
			add("ATTACH:" + att.URI)
		}
	}
	for _, conf := range ev.ConferenceLinks {
		if conf.Feature != "" {
			add("CONFERENCE;VALUE=URI;FEATURE=" + conf.Feature + ":" + conf.URI)
		} else {
			add("CONFERENCE;VALUE=URI:" + conf.URI)
		}
	}
	if ev.Geo != nil {
		add(fmt.Sprintf("GEO:%.6f;%.6f", ev.Geo.Latitude, ev.Geo.Longitude))
	}
	if ev.Recurrence != nil {
		add("RRULE:" + ruleString(ev.Recurrence))
	}
	for _, raw := range ev.Extra {
		add(raw)
	}
	for i := range ev.Alarms {
		lines = appendAlarm(lines, &ev.Alarms[i])
	}
	add("END:VEVENT")
	return lines
}

func appendAlarm(lines []string, a *model.Alarm) []string {
	action := a.Action
	if action == "" {
		action = model.ActionDisplay
	}
	lines = append(lines,
		"BEGIN:VALARM",
		"TRIGGER:"+formatDuration(a.Trigger),
		"ACTION:"+string(action),
	)
	if a.Description != "" {
		lines = append(lines, "DESCRIPTION:"+EscapeText(a.Description))
	}
	return append(lines, "END:VALARM")
}

// organizerLine builds the ORGANIZER property. A name without a mail
// address still gets a syntactically valid (if useless) cal-address.
func organizerLine(ev *model.Event) string {
	if ev.OrganizerName == "" && ev.OrganizerEmail == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("ORGANIZER")
	if ev.OrganizerName != "" {
		b.WriteString(";CN=")
		b.WriteString(quoteParam(ev.OrganizerName))
	}
	b.WriteByte(':')
	if ev.OrganizerEmail != "" {
		b.WriteString("mailto:" + ev.OrganizerEmail)
	} else {
		b.WriteString("invalid:nomail")
	}
	return b.String()
}

// quoteParam wraps a parameter value in double quotes when it contains
// characters that would otherwise terminate the parameter.
func quoteParam(v string) string {
	if strings.ContainsAny(v, ";:,") {
		return `"` + strings.ReplaceAll(v, `"`, "'") + `"`
	}
	return v
}

// ruleString renders a RecurrenceRule with FREQ always first and the
// remaining non-empty components joined by semicolons.
func ruleString(r *model.RecurrenceRule) string {
	parts := []string{"FREQ=" + string(r.Freq)}
	if len(r.ByDay) > 0 {
		parts = append(parts, "BYDAY="+strings.Join(r.ByDay, ","))
	}
	if len(r.ByMonthDay) > 0 {
		days := make([]string, len(r.ByMonthDay))
		for i, d := range r.ByMonthDay {
			days[i] = strconv.Itoa(d)
		}
		parts = append(parts, "BYMONTHDAY="+strings.Join(days, ","))
	}
	if r.ByMonth > 0 {
		parts = append(parts, "BYMONTH="+strconv.Itoa(r.ByMonth))
	}
	switch {
	case r.Count > 0:
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	case !r.Until.IsZero():
		parts = append(parts, "UNTIL="+r.Until.UTC().Format(layoutUTC))
	}
	return strings.Join(parts, ";")
}
