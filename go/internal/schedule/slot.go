package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Slot is the UTC hour at which a guild's daily battle starts. Only the hours
// in Slots are valid.
type Slot int

const (
	Slot21 Slot = 21
	Slot1  Slot = 1
	Slot4  Slot = 4
	Slot11 Slot = 11
)

// Slots lists the selectable slots in display order.
var Slots = []Slot{Slot21, Slot1, Slot4, Slot11}

// DefaultSlot is used for guilds that never picked one.
const DefaultSlot = Slot21

// Valid reports whether s is one of the enumerated slots.
func (s Slot) Valid() bool {
	for _, v := range Slots {
		if s == v {
			return true
		}
	}
	return false
}

// Hour returns the UTC start hour.
func (s Slot) Hour() int { return int(s) }

// Label renders the slot the way guild members pick it, e.g. "21:00 – 22:00".
func (s Slot) Label() string {
	return fmt.Sprintf("%d:00 – %d:00", s.Hour(), (s.Hour()+1)%24)
}

func (s Slot) String() string { return s.Label() }

// ParseSlot accepts a slot label ("4:00 – 5:00", with an en dash or a plain
// hyphen), a start time ("04:00") or a bare hour ("4").
func ParseSlot(v string) (Slot, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, ErrInvalidSlot
	}
	for _, s := range Slots {
		if v == s.Label() || v == strings.Replace(s.Label(), "–", "-", 1) {
			return s, nil
		}
	}

	start := v
	if i := strings.IndexAny(v, "–-"); i >= 0 {
		start = strings.TrimSpace(v[:i])
	}
	start = strings.TrimSuffix(start, ":00")
	hour, err := strconv.Atoi(start)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSlot, v)
	}
	s := Slot(hour)
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSlot, v)
	}
	return s, nil
}

func (s Slot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Label())
}

// UnmarshalJSON accepts the label or the hour as a number.
func (s *Slot) UnmarshalJSON(data []byte) error {
	var hour int
	if err := json.Unmarshal(data, &hour); err == nil {
		if !Slot(hour).Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidSlot, hour)
		}
		*s = Slot(hour)
		return nil
	}

	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSlot, data)
	}
	parsed, err := ParseSlot(label)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
