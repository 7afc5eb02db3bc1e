// Package model holds the calendar value types shared by the codec, the
// definition-file builder and the web layer. All types are plain value
// records: they are constructed once (by the builder or the decoder) and
// never mutated afterwards.
package model

import "time"

// CalendarDocument is one VCALENDAR wrapper with its events in document
// order. VERSION, CALSCALE and METHOD are fixed by the encoder and are not
// part of the model.
type CalendarDocument struct {
	// ProductID becomes the PRODID line, e.g. "-//evcal//Event Publisher//EN".
	ProductID string

	Events []Event
}

// TemporalKind selects which interpretation of a TemporalValue applies.
type TemporalKind int

const (
	// TemporalUnset marks an absent optional value (e.g. no DTEND).
	TemporalUnset TemporalKind = iota
	// TemporalUTC is an absolute instant, serialized with a trailing Z.
	TemporalUTC
	// TemporalZoned is local wall-clock time qualified by an IANA TZID.
	TemporalZoned
	// TemporalDate is a date without a time component (all-day).
	TemporalDate
)

// TemporalValue is the tagged datetime variant used for DTSTART/DTEND.
//
// For TemporalZoned the Time field carries the wall-clock digits only; the
// zone is identified by TZID and is not resolved by the codec. This keeps
// encode/decode independent of the host tzdata: a document mentioning an
// unknown zone still round-trips.
type TemporalValue struct {
	Kind TemporalKind
	Time time.Time
	TZID string // set only when Kind == TemporalZoned
}

// UTCInstant builds a TemporalValue for an absolute instant.
func UTCInstant(t time.Time) TemporalValue {
	return TemporalValue{Kind: TemporalUTC, Time: t.UTC()}
}

// ZonedLocal builds a TemporalValue from wall-clock time in the named zone.
func ZonedLocal(t time.Time, tzid string) TemporalValue {
	return TemporalValue{Kind: TemporalZoned, Time: t, TZID: tzid}
}

// DateOnly builds an all-day TemporalValue; the time-of-day part of t is
// ignored by the encoder.
func DateOnly(t time.Time) TemporalValue {
	return TemporalValue{Kind: TemporalDate, Time: t}
}

// IsSet reports whether the value carries a datetime at all.
func (v TemporalValue) IsSet() bool { return v.Kind != TemporalUnset }

// EventStatus is the VEVENT STATUS enumeration.
type EventStatus string

const (
	StatusConfirmed EventStatus = "CONFIRMED"
	StatusTentative EventStatus = "TENTATIVE"
	StatusCancelled EventStatus = "CANCELLED"
)

// Classification is the VEVENT CLASS enumeration.
type Classification string

const (
	ClassPublic       Classification = "PUBLIC"
	ClassPrivate      Classification = "PRIVATE"
	ClassConfidential Classification = "CONFIDENTIAL"
)

// Attachment is an ATTACH reference. Only URI references are supported;
// inline binary content is deliberately not modeled.
type Attachment struct {
	MimeType string // optional, becomes the FMTTYPE parameter
	URI      string
}

// ConferenceLink is a CONFERENCE property (RFC 7986).
type ConferenceLink struct {
	Feature string // e.g. "VIDEO", "AUDIO"; optional
	URI     string
}

// GeoPoint is a GEO coordinate pair in decimal degrees.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// AlarmAction is the VALARM ACTION enumeration.
type AlarmAction string

const (
	ActionDisplay AlarmAction = "DISPLAY"
	ActionAudio   AlarmAction = "AUDIO"
	ActionEmail   AlarmAction = "EMAIL"
)

// Alarm is one VALARM attached to an event. Trigger is relative to the
// event start; negative values fire before it.
type Alarm struct {
	Trigger     time.Duration
	Action      AlarmAction // empty means DISPLAY
	Description string
}

// Frequency is the RRULE FREQ enumeration.
type Frequency string

const (
	FreqDaily   Frequency = "DAILY"
	FreqWeekly  Frequency = "WEEKLY"
	FreqMonthly Frequency = "MONTHLY"
	FreqYearly  Frequency = "YEARLY"
)

// RecurrenceRule is the subset of the RRULE grammar the codec serializes.
// Count and Until terminate the rule and are mutually exclusive; both zero
// means the rule is unbounded.
type RecurrenceRule struct {
	Freq       Frequency
	ByDay      []string // weekday codes: MO TU WE TH FR SA SU
	ByMonthDay []int
	ByMonth    int // 1-12, 0 = unset
	Count      int
	Until      time.Time // UTC; zero = unset
}

// Event is one VEVENT. Optional string fields are empty when absent;
// optional structured fields are nil pointers.
type Event struct {
	UID       string
	CreatedAt time.Time // DTSTAMP, always UTC

	Start    TemporalValue
	End      TemporalValue  // mutually exclusive with Duration
	Duration *time.Duration // mutually exclusive with End

	Summary        string
	Location       string
	Description    string
	URL            string
	OrganizerName  string
	OrganizerEmail string

	Categories []string
	Status     EventStatus
	Class      Classification
	Priority   int // 0-9, 0 = undefined

	Images          []string
	Attachments     []Attachment
	ConferenceLinks []ConferenceLink
	Geo             *GeoPoint

	Recurrence *RecurrenceRule
	Alarms     []Alarm

	// Extra holds unrecognized property lines (already unfolded) verbatim,
	// so that decoding a foreign document and re-encoding it loses nothing.
	Extra []string
}

// Occurrence is a single concrete instance of an event after recurrence
// expansion, normalized into the display timezone.
type Occurrence struct {
	UID string

	// InstanceKey distinguishes occurrences of the same recurring event;
	// it is derived from the local start time.
	InstanceKey string

	Summary  string
	Location string

	AllDay bool
	Start  time.Time
	End    time.Time
}
