package build

import (
	"time"

	"evcal/internal/model"
)

// Describe converts a calendar document back into a Definition, so a
// decoded .ics can be dumped as editable YAML and re-encoded later.
// Verbatim extension lines have no definition-file representation and are
// not carried over.
func Describe(doc *model.CalendarDocument) *Definition {
	def := &Definition{ProductID: doc.ProductID}
	for i := range doc.Events {
		def.Events = append(def.Events, describeEvent(&doc.Events[i]))
	}
	return def
}

func describeEvent(ev *model.Event) EventDefinition {
	out := EventDefinition{
		UID:            ev.UID,
		Summary:        ev.Summary,
		Location:       ev.Location,
		Description:    ev.Description,
		URL:            ev.URL,
		Organizer:      ev.OrganizerName,
		OrganizerEmail: ev.OrganizerEmail,
		Categories:     ev.Categories,
		Status:         string(ev.Status),
		Class:          string(ev.Class),
		Priority:       ev.Priority,
		Images:         ev.Images,
	}

	out.Start, out.Timezone = describeWhen(ev.Start)
	if ev.End.IsSet() {
		out.End, _ = describeWhen(ev.End)
	}
	if ev.Duration != nil {
		out.Duration = ev.Duration.String()
	}

	for _, att := range ev.Attachments {
		out.Attachments = append(out.Attachments, AttachmentDefinition{URI: att.URI, MimeType: att.MimeType})
	}
	for _, conf := range ev.ConferenceLinks {
		out.Conference = append(out.Conference, ConferenceDefinition{URI: conf.URI, Feature: conf.Feature})
	}
	if ev.Geo != nil {
		out.Geo = &GeoDefinition{Lat: ev.Geo.Latitude, Lon: ev.Geo.Longitude}
	}
	for _, a := range ev.Alarms {
		out.Alarms = append(out.Alarms, AlarmDefinition{
			Before:      (-a.Trigger).String(),
			Action:      string(a.Action),
			Description: a.Description,
		})
	}
	if r := ev.Recurrence; r != nil {
		rule := &RuleDefinition{
			Freq:       string(r.Freq),
			ByDay:      r.ByDay,
			ByMonthDay: r.ByMonthDay,
			ByMonth:    r.ByMonth,
			Count:      r.Count,
		}
		if !r.Until.IsZero() {
			rule.Until = r.Until.Format(time.RFC3339)
		}
		out.Recurrence = rule
	}
	return out
}

func describeWhen(v model.TemporalValue) (value, tz string) {
	switch v.Kind {
	case model.TemporalDate:
		return v.Time.Format("2006-01-02"), ""
	case model.TemporalUTC:
		return v.Time.UTC().Format(time.RFC3339), ""
	case model.TemporalZoned:
		return v.Time.Format("2006-01-02T15:04:05"), v.TZID
	}
	return "", ""
}
