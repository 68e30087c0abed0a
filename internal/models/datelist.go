package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// DateList stores an ordered set of due dates as a JSON array of ISO dates.
type DateList []time.Time

// Scan implements sql.Scanner for jsonb/text columns.
func (d *DateList) Scan(src interface{}) error {
	if src == nil {
		*d = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported due_dates type %T", src)
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("decode due_dates: %w", err)
	}
	dates := make(DateList, 0, len(items))
	for _, item := range items {
		t, err := time.Parse(dateLayout, item)
		if err != nil {
			return fmt.Errorf("parse due date %q: %w", item, err)
		}
		dates = append(dates, t)
	}
	*d = dates
	return nil
}

// Value implements driver.Valuer.
func (d DateList) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	items := make([]string, len(d))
	for i, t := range d {
		items[i] = t.Format(dateLayout)
	}
	return json.Marshal(items)
}

// MarshalJSON renders dates as ISO day strings.
func (d DateList) MarshalJSON() ([]byte, error) {
	items := make([]string, len(d))
	for i, t := range d {
		items[i] = t.Format(dateLayout)
	}
	return json.Marshal(items)
}

// UnmarshalJSON accepts an array of ISO day strings.
func (d *DateList) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	dates := make(DateList, 0, len(items))
	for _, item := range items {
		t, err := time.Parse(dateLayout, item)
		if err != nil {
			return fmt.Errorf("parse due date %q: %w", item, err)
		}
		dates = append(dates, t)
	}
	*d = dates
	return nil
}
