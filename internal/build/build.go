// Package build turns YAML event definition files into calendar documents
// ready for encoding. The current time and UID generation are injected so
// the produced document (and therefore the encoded output) is fully
// deterministic under test.
package build

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"evcal/internal/model"
)

// DefaultProductID is used when the definition file does not set one.
const DefaultProductID = "-//evcal//Event Publisher//EN"

// Definition is the root of an event definition file.
type Definition struct {
	ProductID string            `yaml:"product_id"`
	Events    []EventDefinition `yaml:"events"`
}

// EventDefinition mirrors the fields the upstream extractor supplies.
// Datetimes are ISO strings; "2006-01-02" marks an all-day date,
// a trailing Z or numeric offset marks an absolute instant, and a bare
// "2006-01-02T15:04:05" is wall-clock time in Timezone.
type EventDefinition struct {
	UID      string `yaml:"uid"` // optional; generated when empty
	Summary  string `yaml:"summary"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
	Duration string `yaml:"duration"` // Go syntax, e.g. "3h30m"
	Timezone string `yaml:"timezone"` // IANA id for wall-clock datetimes

	Location       string `yaml:"location"`
	Description    string `yaml:"description"`
	URL            string `yaml:"url"`
	Organizer      string `yaml:"organizer"`
	OrganizerEmail string `yaml:"organizer_email"`

	Categories []string `yaml:"categories"`
	Status     string   `yaml:"status"`
	Class      string   `yaml:"class"`
	Priority   int      `yaml:"priority"`

	Images      []string               `yaml:"images"`
	Attachments []AttachmentDefinition `yaml:"attachments"`
	Conference  []ConferenceDefinition `yaml:"conference"`
	Geo         *GeoDefinition         `yaml:"geo"`

	Alarms     []AlarmDefinition `yaml:"alarms"`
	Recurrence *RuleDefinition   `yaml:"recurrence"`
}

type AttachmentDefinition struct {
	URI      string `yaml:"uri"`
	MimeType string `yaml:"mime_type"` // inferred from the URI when empty
}

type ConferenceDefinition struct {
	URI     string `yaml:"uri"`
	Feature string `yaml:"feature"` // VIDEO when empty
}

type GeoDefinition struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

type AlarmDefinition struct {
	Before      string `yaml:"before"` // Go duration before event start, e.g. "15m"
	Action      string `yaml:"action"`
	Description string `yaml:"description"`
}

type RuleDefinition struct {
	Freq       string   `yaml:"freq"`
	ByDay      []string `yaml:"by_day"`
	ByMonthDay []int    `yaml:"by_month_day"`
	ByMonth    int      `yaml:"by_month"`
	Count      int      `yaml:"count"`
	Until      string   `yaml:"until"` // UTC instant, RFC 3339
}

// Builder constructs calendar documents from definitions.
type Builder struct {
	// Now supplies the DTSTAMP value for every built event.
	Now func() time.Time
	// NewUID supplies UIDs for events that do not set one.
	NewUID func() string
}

// New returns a Builder using the real clock and random UIDs.
func New() *Builder {
	return &Builder{
		Now:    time.Now,
		NewUID: randomUID,
	}
}

// LoadFile reads and builds a definition file.
func (b *Builder) LoadFile(path string) (*model.CalendarDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def Definition
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("definition %s: %w", path, err)
	}
	doc, err := b.Build(&def)
	if err != nil {
		return nil, fmt.Errorf("definition %s: %w", path, err)
	}
	return doc, nil
}

// Build turns a parsed definition into a CalendarDocument.
func (b *Builder) Build(def *Definition) (*model.CalendarDocument, error) {
	doc := &model.CalendarDocument{ProductID: def.ProductID}
	if doc.ProductID == "" {
		doc.ProductID = DefaultProductID
	}

	for i := range def.Events {
		ev, err := b.buildEvent(&def.Events[i])
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i+1, err)
		}
		doc.Events = append(doc.Events, ev)
	}
	return doc, nil
}

func (b *Builder) buildEvent(def *EventDefinition) (model.Event, error) {
	ev := model.Event{
		UID:            def.UID,
		CreatedAt:      b.Now().UTC().Truncate(time.Second),
		Summary:        def.Summary,
		Location:       def.Location,
		Description:    def.Description,
		URL:            def.URL,
		OrganizerName:  def.Organizer,
		OrganizerEmail: def.OrganizerEmail,
		Categories:     def.Categories,
		Status:         model.EventStatus(strings.ToUpper(def.Status)),
		Class:          model.Classification(strings.ToUpper(def.Class)),
		Priority:       def.Priority,
		Images:         def.Images,
	}
	if ev.UID == "" {
		ev.UID = b.NewUID()
	}

	if def.Start == "" {
		return ev, fmt.Errorf("start is required")
	}
	start, err := parseWhen(def.Start, def.Timezone)
	if err != nil {
		return ev, fmt.Errorf("start: %w", err)
	}
	ev.Start = start

	if def.End != "" && def.Duration != "" {
		return ev, fmt.Errorf("end and duration are mutually exclusive")
	}
	if def.End != "" {
		end, err := parseWhen(def.End, def.Timezone)
		if err != nil {
			return ev, fmt.Errorf("end: %w", err)
		}
		ev.End = end
	}
	if def.Duration != "" {
		d, err := time.ParseDuration(def.Duration)
		if err != nil {
			return ev, fmt.Errorf("duration: %w", err)
		}
		ev.Duration = &d
	}

	for _, att := range def.Attachments {
		mime := att.MimeType
		if mime == "" {
			mime = mimeFromURI(att.URI)
		}
		ev.Attachments = append(ev.Attachments, model.Attachment{MimeType: mime, URI: att.URI})
	}
	for _, conf := range def.Conference {
		feature := strings.ToUpper(conf.Feature)
		if feature == "" {
			feature = "VIDEO"
		}
		ev.ConferenceLinks = append(ev.ConferenceLinks, model.ConferenceLink{Feature: feature, URI: conf.URI})
	}
	if def.Geo != nil {
		ev.Geo = &model.GeoPoint{Latitude: def.Geo.Lat, Longitude: def.Geo.Lon}
	}

	for _, a := range def.Alarms {
		alarm := model.Alarm{
			Action:      model.AlarmAction(strings.ToUpper(a.Action)),
			Description: a.Description,
		}
		if a.Before != "" {
			before, err := time.ParseDuration(a.Before)
			if err != nil {
				return ev, fmt.Errorf("alarm before: %w", err)
			}
			alarm.Trigger = -before
		}
		ev.Alarms = append(ev.Alarms, alarm)
	}

	if def.Recurrence != nil {
		rule, err := buildRule(def.Recurrence)
		if err != nil {
			return ev, err
		}
		ev.Recurrence = rule
	}
	return ev, nil
}

func buildRule(def *RuleDefinition) (*model.RecurrenceRule, error) {
	rule := &model.RecurrenceRule{
		Freq:       model.Frequency(strings.ToUpper(def.Freq)),
		ByMonthDay: def.ByMonthDay,
		ByMonth:    def.ByMonth,
		Count:      def.Count,
	}
	for _, d := range def.ByDay {
		rule.ByDay = append(rule.ByDay, strings.ToUpper(d))
	}
	if def.Until != "" {
		t, err := time.Parse(time.RFC3339, def.Until)
		if err != nil {
			return nil, fmt.Errorf("recurrence until: %w", err)
		}
		rule.Until = t.UTC()
	}
	return rule, nil
}

// parseWhen maps a definition datetime string onto the temporal variant it
// spells: date-only, absolute instant, or wall-clock time in tz.
func parseWhen(s, tz string) (model.TemporalValue, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return model.DateOnly(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return model.UTCInstant(t), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return model.ZonedLocal(t, tz), nil
	}
	return model.TemporalValue{}, fmt.Errorf("unrecognized datetime %q", s)
}

// mimeFromURI guesses the FMTTYPE from the URI extension for the handful
// of formats event attachments actually use.
func mimeFromURI(uri string) string {
	lower := strings.ToLower(uri)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".doc"), strings.HasSuffix(lower, ".docx"):
		return "application/msword"
	}
	return ""
}

func randomUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// timestamp rather than panic when it somehow does.
		return fmt.Sprintf("%d@evcal.local", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf) + "@evcal.local"
}
