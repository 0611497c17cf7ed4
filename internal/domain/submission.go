package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Flag is a weekday toggle as sent by the intake forms. It accepts JSON true
// and the string "true" (case-insensitive); every other value, typos such as
// "fasle" included, decodes to false.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		*f = false
		return nil
	}
	switch t := v.(type) {
	case bool:
		*f = Flag(t)
	case string:
		*f = Flag(strings.EqualFold(strings.TrimSpace(t), "true"))
	default:
		*f = false
	}
	return nil
}

// Text is a string field that tolerates scalar non-string JSON (numbers,
// booleans) from spreadsheet-driven senders. null, objects and arrays decode
// to "", so a required field sent as a list fails validation as missing.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(s)
		return nil
	}
	raw := strings.TrimSpace(string(b))
	if raw == "null" || strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		*t = ""
		return nil
	}
	*t = Text(raw)
	return nil
}

// Submission is one inbound email request, single or as a batch row.
type Submission struct {
	Type     Text  `json:"type"`
	To       Text  `json:"to"`
	From     Text  `json:"from"`
	Cc       Text  `json:"cc"`
	Subject  Text  `json:"subject"`
	HTMLBody *Text `json:"htmlBody"`
	Body     *Text `json:"body"`

	Mon Flag `json:"mon"`
	Tue Flag `json:"tue"`
	Wed Flag `json:"wed"`
	Thu Flag `json:"thu"`
	Fri Flag `json:"fri"`
	Sat Flag `json:"sat"`
	Sun Flag `json:"sun"`

	StopDate Text              `json:"stopDate"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// Validate checks the mandatory fields. row is reported back in the error.
func (s *Submission) Validate(row int) error {
	if strings.TrimSpace(string(s.To)) == "" {
		return &ValidationError{Row: row, Err: ErrMissingTo}
	}
	if strings.TrimSpace(string(s.Subject)) == "" {
		return &ValidationError{Row: row, Err: ErrMissingSubject}
	}
	return nil
}

// ResolvedBody picks htmlBody, falling back to body, falling back to "".
func (s *Submission) ResolvedBody() string {
	if s.HTMLBody != nil {
		return string(*s.HTMLBody)
	}
	if s.Body != nil {
		return string(*s.Body)
	}
	return ""
}

// Weekdays collects the seven flags into a set.
func (s *Submission) Weekdays() Weekdays {
	flags := [7]Flag{s.Sun, s.Mon, s.Tue, s.Wed, s.Thu, s.Fri, s.Sat}
	var w Weekdays
	for i, f := range flags {
		if f {
			w = w.With(time.Weekday(i))
		}
	}
	return w
}

// ToRecord normalises a validated submission into a record ready to append.
func (s *Submission) ToRecord(now time.Time, status Status) *QueueRecord {
	var meta map[string]string
	if len(s.Meta) > 0 {
		meta = make(map[string]string, len(s.Meta))
		for k, v := range s.Meta {
			meta[k] = v
		}
	}
	return &QueueRecord{
		CreatedAt: now,
		Type:      strings.TrimSpace(string(s.Type)),
		From:      strings.TrimSpace(string(s.From)),
		To:        strings.TrimSpace(string(s.To)),
		Cc:        strings.TrimSpace(string(s.Cc)),
		Subject:   strings.TrimSpace(string(s.Subject)),
		Body:      s.ResolvedBody(),
		Schedule: Schedule{
			Weekdays: s.Weekdays(),
			StopDate: strings.TrimSpace(string(s.StopDate)),
		},
		Status: status,
		Meta:   meta,
	}
}

// RecordSummary is the per-record part of an ingestion result.
type RecordSummary struct {
	ID              int64  `json:"id"`
	To              string `json:"to"`
	Subject         string `json:"subject"`
	RepeatScheduled bool   `json:"repeatScheduled"`
}

// IngestResult aggregates one ingestion request. Errors holds one reason per
// rejected submission; siblings are processed regardless.
type IngestResult struct {
	Processed int             `json:"processed"`
	Errors    []string        `json:"errors"`
	Records   []RecordSummary `json:"records"`
}
