package ics

import (
	"fmt"
	"time"

	"evcal/internal/model"
)

// Validate enforces the data-model invariants, returning the first
// violation found. Encode runs it automatically; callers that decode
// foreign documents should run it themselves before trusting the fields.
func Validate(doc *model.CalendarDocument) error {
	if doc == nil {
		return &ValidationError{Field: "document", Reason: "is nil"}
	}
	if doc.ProductID == "" {
		return &ValidationError{Field: "productId", Reason: "must not be empty"}
	}

	seen := make(map[string]struct{}, len(doc.Events))
	for i := range doc.Events {
		ev := &doc.Events[i]
		if err := validateEvent(ev); err != nil {
			return err
		}
		if _, dup := seen[ev.UID]; dup {
			return &ValidationError{UID: ev.UID, Field: "uid", Reason: "collides with another event in the document"}
		}
		seen[ev.UID] = struct{}{}
	}
	return nil
}

func validateEvent(ev *model.Event) error {
	fail := func(field, reason string) error {
		return &ValidationError{UID: ev.UID, Field: field, Reason: reason}
	}

	if ev.UID == "" {
		return &ValidationError{Field: "uid", Reason: "must not be empty"}
	}
	if ev.CreatedAt.IsZero() {
		return fail("createdAt", "must be set")
	}
	if !ev.Start.IsSet() {
		return fail("start", "must be set")
	}
	if ev.Summary == "" {
		return fail("summary", "must not be empty")
	}

	if ev.End.IsSet() && ev.Duration != nil {
		return &UnsupportedFeatureError{UID: ev.UID, Feature: "both end and duration set"}
	}

	if ev.End.IsSet() {
		if err := validateRange(ev, fail); err != nil {
			return err
		}
	}

	if ev.Priority < 0 || ev.Priority > 9 {
		return fail("priority", fmt.Sprintf("%d outside 0-9", ev.Priority))
	}
	switch ev.Status {
	case "", model.StatusConfirmed, model.StatusTentative, model.StatusCancelled:
	default:
		return fail("status", fmt.Sprintf("unknown value %q", ev.Status))
	}
	switch ev.Class {
	case "", model.ClassPublic, model.ClassPrivate, model.ClassConfidential:
	default:
		return fail("classification", fmt.Sprintf("unknown value %q", ev.Class))
	}
	if g := ev.Geo; g != nil {
		if g.Latitude < -90 || g.Latitude > 90 {
			return fail("geo.latitude", fmt.Sprintf("%v outside -90..90", g.Latitude))
		}
		if g.Longitude < -180 || g.Longitude > 180 {
			return fail("geo.longitude", fmt.Sprintf("%v outside -180..180", g.Longitude))
		}
	}

	for _, att := range ev.Attachments {
		if att.URI == "" {
			return fail("attachments", "attachment without URI")
		}
	}
	for _, a := range ev.Alarms {
		switch a.Action {
		case "", model.ActionDisplay, model.ActionAudio, model.ActionEmail:
		default:
			return fail("alarms.action", fmt.Sprintf("unknown value %q", a.Action))
		}
	}
	if r := ev.Recurrence; r != nil {
		if err := validateRule(r, fail); err != nil {
			return err
		}
	}
	return nil
}

// validateRange checks start/end ordering. Datetime forms must be strictly
// increasing; date-only ranges have an exclusive end that must cover at
// least one full day.
func validateRange(ev *model.Event, fail func(field, reason string) error) error {
	start, end := ev.Start, ev.End

	if (start.Kind == model.TemporalDate) != (end.Kind == model.TemporalDate) {
		return fail("end", "date-only and datetime forms cannot be mixed")
	}

	if start.Kind == model.TemporalDate {
		if end.Time.Before(start.Time.Add(24 * time.Hour)) {
			return fail("end", "date-only end is exclusive and must be at least one day after start")
		}
		return nil
	}

	// Zoned values in different zones are compared by wall clock; the
	// codec never resolves zone data.
	if !end.Time.After(start.Time) {
		return fail("end", "must be strictly after start")
	}
	return nil
}

func validateRule(r *model.RecurrenceRule, fail func(field, reason string) error) error {
	switch r.Freq {
	case model.FreqDaily, model.FreqWeekly, model.FreqMonthly, model.FreqYearly:
	default:
		return fail("recurrence.freq", fmt.Sprintf("unknown value %q", r.Freq))
	}
	for _, day := range r.ByDay {
		switch day {
		case "MO", "TU", "WE", "TH", "FR", "SA", "SU":
		default:
			return fail("recurrence.byDay", fmt.Sprintf("unknown weekday code %q", day))
		}
	}
	for _, d := range r.ByMonthDay {
		if d == 0 || d < -31 || d > 31 {
			return fail("recurrence.byMonthDay", fmt.Sprintf("%d outside 1-31", d))
		}
	}
	if r.ByMonth < 0 || r.ByMonth > 12 {
		return fail("recurrence.byMonth", fmt.Sprintf("%d outside 1-12", r.ByMonth))
	}
	if r.Count < 0 {
		return fail("recurrence.count", "must not be negative")
	}
	if r.Count > 0 && !r.Until.IsZero() {
		return fail("recurrence", "count and until are mutually exclusive")
	}
	return nil
}
