package controllers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// calendarDate accepts "YYYY-MM-DD" or a full RFC 3339 timestamp.
type calendarDate struct {
	time.Time
}

func (d *calendarDate) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %q", raw)
	}
	d.Time = t
	return nil
}
