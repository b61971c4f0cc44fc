package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the calendar date format used on the wire.
const DateLayout = "2006-01-02"

// WindowDays is the number of consecutive battle days in a window.
const WindowDays = 3

// Window is an inclusive range of UTC calendar dates. A set window always
// spans exactly WindowDays days. The zero Window means nothing is scheduled.
type Window struct {
	From time.Time
	To   time.Time
}

// Date truncates t to midnight of its UTC calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight.
func ParseDate(v string) (time.Time, error) {
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	return t, nil
}

// WindowStarting returns the window whose first day is day's UTC date.
func WindowStarting(day time.Time) Window {
	from := Date(day)
	return Window{From: from, To: from.AddDate(0, 0, WindowDays-1)}
}

// IsSet reports whether the window has a start date.
func (w Window) IsSet() bool { return !w.From.IsZero() }

// Validate checks that a set window has UTC midnight bounds exactly
// WindowDays apart. The zero window is valid.
func (w Window) Validate() error {
	if !w.IsSet() {
		if !w.To.IsZero() {
			return fmt.Errorf("%w: end without start", ErrInvalidRange)
		}
		return nil
	}
	if !w.From.Equal(Date(w.From)) || !w.To.Equal(Date(w.To)) {
		return fmt.Errorf("%w: bounds must be calendar dates", ErrInvalidRange)
	}
	if !w.To.Equal(w.From.AddDate(0, 0, WindowDays-1)) {
		return fmt.Errorf("%w: window must span %d consecutive days", ErrInvalidRange, WindowDays)
	}
	return nil
}

// Contains reports whether day's UTC date falls inside the window.
func (w Window) Contains(day time.Time) bool {
	if !w.IsSet() {
		return false
	}
	d := Date(day)
	return !d.Before(w.From) && !d.After(w.To)
}

// Dates lists the window's days as YYYY-MM-DD strings.
func (w Window) Dates() []string {
	if w.Validate() != nil || !w.IsSet() {
		return nil
	}
	var dates []string
	for d := w.From; !d.After(w.To); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates
}

type windowJSON struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

func (w Window) MarshalJSON() ([]byte, error) {
	if !w.IsSet() {
		return []byte("null"), nil
	}
	return json.Marshal(windowJSON{From: w.From.Format(DateLayout), To: w.To.Format(DateLayout)})
}

// UnmarshalJSON accepts {from, to?} or null. A missing "to" is derived from
// "from"; a present one must match.
func (w *Window) UnmarshalJSON(data []byte) error {
	var raw *windowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	if raw == nil || raw.From == "" {
		if raw != nil && raw.To != "" {
			return fmt.Errorf("%w: end without start", ErrInvalidRange)
		}
		*w = Window{}
		return nil
	}

	from, err := ParseDate(raw.From)
	if err != nil {
		return err
	}
	parsed := WindowStarting(from)
	if raw.To != "" {
		to, err := ParseDate(raw.To)
		if err != nil {
			return err
		}
		parsed.To = to
	}
	if err := parsed.Validate(); err != nil {
		return err
	}
	*w = parsed
	return nil
}
