package ics

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"evcal/internal/model"
)

func launchEvent() model.Event {
	return model.Event{
		UID:       "evt-1",
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Start:     model.ZonedLocal(time.Date(2025, 3, 15, 19, 0, 0, 0, time.UTC), "America/Los_Angeles"),
		End:       model.ZonedLocal(time.Date(2025, 3, 15, 22, 0, 0, 0, time.UTC), "America/Los_Angeles"),
		Summary:   "Launch",
		Location:  "Hall A, 1 Main St, City",
	}
}

func singleEventDoc(ev model.Event) *model.CalendarDocument {
	return &model.CalendarDocument{
		ProductID: "-//evcal//Event Publisher//EN",
		Events:    []model.Event{ev},
	}
}

func TestEncodeHeader(t *testing.T) {
	data, err := Encode(singleEventDoc(launchEvent()))
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(string(data), "\r\n")
	want := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//evcal//Event Publisher//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("header line %d = %q, want %q", i, lines[i], w)
		}
	}
	if lines[len(lines)-2] != "END:VCALENDAR" {
		t.Errorf("document does not close with END:VCALENDAR")
	}
	if !bytes.HasSuffix(data, []byte("\r\n")) {
		t.Error("output does not end with CRLF")
	}
}

func TestEncodeZonedScenario(t *testing.T) {
	data, err := Encode(singleEventDoc(launchEvent()))
	if err != nil {
		t.Fatal(err)
	}

	out := string(data)
	for _, want := range []string{
		"DTSTART;TZID=America/Los_Angeles:20250315T190000\r\n",
		"DTEND;TZID=America/Los_Angeles:20250315T220000\r\n",
		`LOCATION:Hall A\, 1 Main St\, City` + "\r\n",
		"UID:evt-1\r\n",
		"SUMMARY:Launch\r\n",
		"DTSTAMP:20250301T120000Z\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestEncodeAlarmBlock(t *testing.T) {
	ev := launchEvent()
	ev.Alarms = []model.Alarm{{Trigger: -15 * time.Minute, Description: "Leave now"}}

	data, err := Encode(singleEventDoc(ev))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	begin := strings.Index(out, "BEGIN:VALARM\r\n")
	end := strings.Index(out, "END:VALARM\r\n")
	if begin < 0 || end < 0 || end < begin {
		t.Fatalf("missing or unbalanced VALARM block:\n%s", out)
	}
	block := out[begin:end]
	if !strings.Contains(block, "TRIGGER:-PT15M\r\n") {
		t.Errorf("alarm block missing TRIGGER:-PT15M:\n%s", block)
	}
	// DISPLAY is assumed when the action is left unspecified.
	if !strings.Contains(block, "ACTION:DISPLAY\r\n") {
		t.Errorf("alarm block missing default ACTION:DISPLAY:\n%s", block)
	}
}

func TestEncodeDescriptionEscaping(t *testing.T) {
	ev := launchEvent()
	ev.Description = "Line one,\nLine two"

	data, err := Encode(singleEventDoc(ev))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `DESCRIPTION:Line one\,\nLine two`+"\r\n") {
		t.Errorf("description not escaped onto one logical line:\n%s", data)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	doc := singleEventDoc(launchEvent())
	a, err := Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("same document encoded to different byte sequences")
	}
}

func TestEncodeEndDurationExclusive(t *testing.T) {
	ev := launchEvent()
	d := 3 * time.Hour
	ev.Duration = &d // End is already set

	_, err := Encode(singleEventDoc(ev))
	var ufe *UnsupportedFeatureError
	if !errors.As(err, &ufe) {
		t.Fatalf("want UnsupportedFeatureError, got %v", err)
	}
	if ufe.UID != "evt-1" {
		t.Errorf("error names UID %q, want evt-1", ufe.UID)
	}

	// Neither end nor duration is an open-ended event and must encode.
	ev = launchEvent()
	ev.End = model.TemporalValue{}
	if _, err := Encode(singleEventDoc(ev)); err != nil {
		t.Errorf("open-ended event rejected: %v", err)
	}
}

func TestValidateDateOnlyRange(t *testing.T) {
	ev := launchEvent()
	ev.Start = model.DateOnly(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	ev.End = model.DateOnly(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))

	err := Validate(singleEventDoc(ev))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("same-day date-only range accepted, got %v", err)
	}
	if ve.Field != "end" {
		t.Errorf("violation names field %q, want end", ve.Field)
	}

	ev.End = model.DateOnly(time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC))
	if err := Validate(singleEventDoc(ev)); err != nil {
		t.Errorf("one-day date-only range rejected: %v", err)
	}
}

func TestValidateFirstViolationNamed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Event)
		field  string
	}{
		{"empty summary", func(ev *model.Event) { ev.Summary = "" }, "summary"},
		{"priority range", func(ev *model.Event) { ev.Priority = 10 }, "priority"},
		{"bad status", func(ev *model.Event) { ev.Status = "MAYBE" }, "status"},
		{"bad class", func(ev *model.Event) { ev.Class = "SECRET" }, "classification"},
		{"end before start", func(ev *model.Event) {
			ev.End = model.ZonedLocal(time.Date(2025, 3, 15, 18, 0, 0, 0, time.UTC), "America/Los_Angeles")
		}, "end"},
		{"bad geo", func(ev *model.Event) { ev.Geo = &model.GeoPoint{Latitude: 91} }, "geo.latitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := launchEvent()
			tt.mutate(&ev)
			err := Validate(singleEventDoc(ev))
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("want ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
			if ve.UID != "evt-1" {
				t.Errorf("uid = %q, want evt-1", ve.UID)
			}
		})
	}
}

func TestValidateUIDCollision(t *testing.T) {
	doc := singleEventDoc(launchEvent())
	doc.Events = append(doc.Events, launchEvent())

	err := Validate(doc)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "uid" {
		t.Fatalf("duplicate UIDs accepted, got %v", err)
	}
}

// fullEvent exercises the entire field surface.
func fullEvent() model.Event {
	ev := launchEvent()
	ev.Description = "Doors at 18:30,\nbring ID"
	ev.URL = "https://example.com/launch"
	ev.OrganizerName = "Events Team"
	ev.OrganizerEmail = "events@example.com"
	ev.Categories = []string{"music", "product, launch"}
	ev.Status = model.StatusConfirmed
	ev.Class = model.ClassPublic
	ev.Priority = 5
	ev.Images = []string{"https://example.com/banner.jpg"}
	ev.Attachments = []model.Attachment{
		{MimeType: "application/pdf", URI: "https://example.com/agenda.pdf"},
		{URI: "https://example.com/map"},
	}
	ev.ConferenceLinks = []model.ConferenceLink{{Feature: "VIDEO", URI: "https://meet.example.com/launch"}}
	ev.Geo = &model.GeoPoint{Latitude: 37.7749, Longitude: -122.4194}
	ev.Alarms = []model.Alarm{{Trigger: -15 * time.Minute, Action: model.ActionDisplay, Description: "Launch soon"}}
	ev.Recurrence = &model.RecurrenceRule{Freq: model.FreqWeekly, ByDay: []string{"SA"}, Count: 4}
	return ev
}

func TestRoundTrip(t *testing.T) {
	doc := singleEventDoc(fullEvent())
	data, err := Encode(doc)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.ProductID != doc.ProductID {
		t.Errorf("ProductID = %q, want %q", decoded.ProductID, doc.ProductID)
	}
	if len(decoded.Events) != 1 {
		t.Fatalf("decoded %d events, want 1", len(decoded.Events))
	}
	if !reflect.DeepEqual(decoded.Events[0], doc.Events[0]) {
		t.Errorf("round trip changed the event:\n got %+v\nwant %+v", decoded.Events[0], doc.Events[0])
	}
}

func TestEncodeDecodeEncodeStable(t *testing.T) {
	first, err := Encode(singleEventDoc(fullEvent()))
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(first)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Encode(decoded)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("re-encoding a decoded document is not stable:\n%s\nvs\n%s", first, second)
	}
}

func TestNoLineExceedsFoldWidth(t *testing.T) {
	ev := fullEvent()
	ev.Description = strings.Repeat("A long description that will certainly need folding. ", 10)

	data, err := Encode(singleEventDoc(ev))
	if err != nil {
		t.Fatal(err)
	}
	for i, line := range strings.Split(string(data), "\r\n") {
		if len(line) > foldWidth {
			t.Errorf("physical line %d is %d octets: %q", i+1, len(line), line)
		}
	}
}

func TestDecodeUnknownPropertyPreserved(t *testing.T) {
	input := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Other//Tool//EN",
		"BEGIN:VEVENT",
		"UID:x-1",
		"DTSTAMP:20250301T120000Z",
		"DTSTART:20250315T190000Z",
		"SUMMARY:Imported",
		"X-CUSTOM-TAG;X-PARAM=1:opaque value",
		"SEQUENCE:3",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	doc, err := Decode([]byte(input))
	if err != nil {
		t.Fatal(err)
	}
	ev := doc.Events[0]
	if len(ev.Extra) != 2 {
		t.Fatalf("Extra = %v, want the two unknown lines", ev.Extra)
	}
	if ev.Extra[0] != "X-CUSTOM-TAG;X-PARAM=1:opaque value" || ev.Extra[1] != "SEQUENCE:3" {
		t.Errorf("unknown lines not preserved verbatim: %v", ev.Extra)
	}

	// Re-encoding keeps them.
	out, err := Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	for _, raw := range ev.Extra {
		if !strings.Contains(string(out), raw+"\r\n") {
			t.Errorf("re-encoded output lost %q", raw)
		}
	}
}

func TestDecodeArbitraryPropertyOrder(t *testing.T) {
	input := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"PRODID:-//Other//Tool//EN",
		"VERSION:2.0",
		"BEGIN:VEVENT",
		"SUMMARY:Shuffled",
		"DTSTART;VALUE=DATE:20250315",
		"DTEND;VALUE=DATE:20250316",
		"DTSTAMP:20250301T120000Z",
		"UID:x-2",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	doc, err := Decode([]byte(input))
	if err != nil {
		t.Fatal(err)
	}
	ev := doc.Events[0]
	if ev.UID != "x-2" || ev.Summary != "Shuffled" {
		t.Errorf("out-of-order properties not decoded: %+v", ev)
	}
	if ev.Start.Kind != model.TemporalDate {
		t.Errorf("VALUE=DATE start decoded as kind %v", ev.Start.Kind)
	}
	if err := Validate(doc); err != nil {
		t.Errorf("decoded document fails validation: %v", err)
	}
}

func TestDecodeFoldedLongLine(t *testing.T) {
	doc := singleEventDoc(fullEvent())
	doc.Events[0].Description = strings.Repeat("fold me ", 40)

	data, err := Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Events[0].Description != doc.Events[0].Description {
		t.Error("folded description did not survive the round trip")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
	}{
		{
			"not a calendar",
			"BEGIN:VEVENT\r\nEND:VEVENT\r\n",
			1,
		},
		{
			"missing END:VCALENDAR",
			"BEGIN:VCALENDAR\r\nVERSION:2.0\r\n",
			2,
		},
		{
			"missing UID",
			"BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nDTSTAMP:20250301T120000Z\r\nDTSTART:20250315T190000Z\r\nSUMMARY:x\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n",
			7,
		},
		{
			"bad datetime",
			"BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:u\r\nDTSTAMP:20250301T120000Z\r\nDTSTART:2025-03-15T19:00\r\nSUMMARY:x\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n",
			6,
		},
		{
			"both DTEND and DURATION",
			"BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:u\r\nDTSTAMP:20250301T120000Z\r\nDTSTART:20250315T190000Z\r\nDTEND:20250315T200000Z\r\nDURATION:PT1H\r\nSUMMARY:x\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n",
			8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("want ParseError, got %v", err)
			}
			if pe.Line != tt.wantLine {
				t.Errorf("error at line %d, want %d (%s)", pe.Line, tt.wantLine, pe.Message)
			}
		})
	}
}

func TestDecodeSkipsUnknownComponents(t *testing.T) {
	input := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Other//Tool//EN",
		"BEGIN:VTIMEZONE",
		"TZID:America/Los_Angeles",
		"BEGIN:STANDARD",
		"TZOFFSETFROM:-0700",
		"END:STANDARD",
		"END:VTIMEZONE",
		"BEGIN:VEVENT",
		"UID:x-3",
		"DTSTAMP:20250301T120000Z",
		"DTSTART:20250315T190000Z",
		"SUMMARY:After timezone block",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	doc, err := Decode([]byte(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Events) != 1 || doc.Events[0].UID != "x-3" {
		t.Errorf("event after VTIMEZONE not decoded: %+v", doc.Events)
	}
}

func TestDecodeQuotedParameter(t *testing.T) {
	input := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Other//Tool//EN",
		"BEGIN:VEVENT",
		"UID:x-4",
		"DTSTAMP:20250301T120000Z",
		"DTSTART:20250315T190000Z",
		"SUMMARY:Quoted organizer",
		`ORGANIZER;CN="Doe, Jane":mailto:jane@example.com`,
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	doc, err := Decode([]byte(input))
	if err != nil {
		t.Fatal(err)
	}
	ev := doc.Events[0]
	if ev.OrganizerName != "Doe, Jane" || ev.OrganizerEmail != "jane@example.com" {
		t.Errorf("quoted CN parameter mishandled: %+v", ev)
	}
}

func TestMultipleEventsKeepDocumentOrder(t *testing.T) {
	doc := &model.CalendarDocument{ProductID: "-//evcal//Event Publisher//EN"}
	for _, uid := range []string{"c", "a", "b"} {
		ev := launchEvent()
		ev.UID = uid
		doc.Events = append(doc.Events, ev)
	}

	data, err := Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	for i, uid := range []string{"c", "a", "b"} {
		if decoded.Events[i].UID != uid {
			t.Errorf("event %d has UID %q, want %q", i, decoded.Events[i].UID, uid)
		}
	}
}
