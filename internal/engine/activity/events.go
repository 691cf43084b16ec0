package activity

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"nbcollab/internal/core/errors"
)

// rawEvent mirrors the execution rows exported by the collection backend.
type rawEvent struct {
	Cell      string `json:"cell"`
	Timestamp string `json:"t_start"`
	User      string `json:"user_id"`
	Status    string `json:"status"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts ISO-8601 timestamps with or without a zone. A
// trailing Z is treated as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	trimmed := strings.TrimSuffix(s, "Z")
	for _, layout := range timestampLayouts[1:] {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New(errors.CodeValidationError, fmt.Sprintf("unrecognized timestamp %q", s))
}

// DecodeEvents parses a JSON array of execution rows. Rows without a cell id
// or with an unreadable timestamp are skipped; the number skipped is returned.
func DecodeEvents(data []byte) ([]Event, int, error) {
	var raw []rawEvent
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, 0, errors.Wrap(err, errors.CodeValidationError, "decode execution events")
	}

	events := make([]Event, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		if r.Cell == "" {
			skipped++
			continue
		}
		ts, err := ParseTimestamp(r.Timestamp)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, Event{CellID: r.Cell, Timestamp: ts, UserID: r.User, Status: r.Status})
	}
	return events, skipped, nil
}

// Filter selects events by time window and user. Zero bounds and an empty user
// list match everything.
type Filter struct {
	Since time.Time
	Until time.Time
	Users []string
}

func (f Filter) Apply(events []Event) []Event {
	users := make(map[string]struct{}, len(f.Users))
	for _, u := range f.Users {
		users[u] = struct{}{}
	}

	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && ev.Timestamp.After(f.Until) {
			continue
		}
		if len(users) > 0 {
			if _, ok := users[ev.UserID]; !ok {
				continue
			}
		}
		out = append(out, ev)
	}
	return out
}
