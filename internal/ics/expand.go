package ics

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "evcal/internal/log"
	"evcal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone all occurrences are converted into.
	// If nil, time.UTC is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the inclusive window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps expansion of unbounded rules. Zero means
	// defaultMaxOccurrencesPerEvent.
	MaxOccurrencesPerEvent int
}

// ExpandResult carries the expanded occurrences plus the UIDs of events
// whose expansion was cut off at the cap.
type ExpandResult struct {
	Occurrences   []model.Occurrence
	TruncatedUIDs []string
}

// Expand turns the document's events into concrete occurrences within the
// configured window, applying each event's recurrence rule. Occurrences
// are returned in document order, recurring instances in rule order.
func Expand(doc *model.CalendarDocument, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.UTC
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	for i := range doc.Events {
		ev := &doc.Events[i]
		occ, hitCap, err := expandEvent(ev, cfg)
		if err != nil {
			appLog.Error("expand: skipping event", err, "uid", ev.UID)
			continue
		}
		if hitCap {
			result.TruncatedUIDs = append(result.TruncatedUIDs, ev.UID)
		}
		result.Occurrences = append(result.Occurrences, occ...)
	}
	return result, nil
}

func expandEvent(ev *model.Event, cfg ExpandConfig) ([]model.Occurrence, bool, error) {
	start, err := resolveInstant(ev.Start)
	if err != nil {
		return nil, false, err
	}
	end, err := eventEnd(ev, start)
	if err != nil {
		return nil, false, err
	}
	allDay := ev.Start.Kind == model.TemporalDate

	if ev.Recurrence == nil {
		if !rangesOverlap(start, end, cfg.RangeStart, cfg.RangeEnd) {
			return nil, false, nil
		}
		return []model.Occurrence{makeOccurrence(ev, start, end, allDay, cfg.DisplayLocation)}, false, nil
	}

	r, err := rrule.StrToRRule(ruleString(ev.Recurrence))
	if err != nil {
		return nil, false, fmt.Errorf("expand: bad recurrence rule: %w", err)
	}
	r.DTStart(start)

	times := r.Between(cfg.RangeStart.In(start.Location()), cfg.RangeEnd.In(start.Location()), true)
	hitCap := false
	if len(times) > cfg.MaxOccurrencesPerEvent {
		times = times[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	dur := end.Sub(start)
	out := make([]model.Occurrence, 0, len(times))
	for _, occStart := range times {
		out = append(out, makeOccurrence(ev, occStart, occStart.Add(dur), allDay, cfg.DisplayLocation))
	}
	return out, hitCap, nil
}

// resolveInstant converts a TemporalValue into an absolute time. Zoned
// values need the named zone present in the host tzdata; this is the one
// place the application (not the codec) resolves TZIDs.
func resolveInstant(v model.TemporalValue) (time.Time, error) {
	switch v.Kind {
	case model.TemporalUTC:
		return v.Time, nil
	case model.TemporalZoned:
		if v.TZID == "" {
			return v.Time, nil
		}
		loc, err := time.LoadLocation(v.TZID)
		if err != nil {
			return time.Time{}, fmt.Errorf("expand: unknown timezone %q: %w", v.TZID, err)
		}
		t := v.Time
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
	case model.TemporalDate:
		t := v.Time
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, errors.New("expand: unset temporal value")
}

func eventEnd(ev *model.Event, start time.Time) (time.Time, error) {
	switch {
	case ev.End.IsSet():
		return resolveInstant(ev.End)
	case ev.Duration != nil:
		return start.Add(*ev.Duration), nil
	case ev.Start.Kind == model.TemporalDate:
		// All-day without explicit end covers the whole day.
		return start.Add(24 * time.Hour), nil
	default:
		// Open-ended: treated as instantaneous for display purposes.
		return start, nil
	}
}

func makeOccurrence(ev *model.Event, start, end time.Time, allDay bool, loc *time.Location) model.Occurrence {
	startLocal := start.In(loc)
	return model.Occurrence{
		UID:         ev.UID,
		InstanceKey: startLocal.Format(time.RFC3339),
		Summary:     ev.Summary,
		Location:    ev.Location,
		AllDay:      allDay,
		Start:       startLocal,
		End:         end.In(loc),
	}
}

func rangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
