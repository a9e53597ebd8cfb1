package scheduling

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SlotMinutes is the fixed appointment granularity.
const SlotMinutes = 30

// Working hours assumed when a working day omits start or end.
var (
	DefaultStart = TimeOfDay(9 * 60)
	DefaultEnd   = TimeOfDay(17 * 60)
)

// DaySchedule is one weekday of a doctor's working-hours template.
type DaySchedule struct {
	Working bool      `json:"working"`
	Start   TimeOfDay `json:"start"`
	End     TimeOfDay `json:"end"`
}

func (d DaySchedule) String() string {
	return d.Start.String() + " - " + d.End.String()
}

// WeekSchedule maps English weekday names ("Monday") to working hours. A
// missing day means the doctor does not work that day.
type WeekSchedule map[string]DaySchedule

// Day returns the working hours for date, and false when the doctor is not
// working.
func (w WeekSchedule) Day(date Date) (DaySchedule, bool) {
	d, ok := w[date.Weekday().String()]
	if !ok || !d.Working {
		return DaySchedule{}, false
	}
	return d, true
}

type rawDay struct {
	Working bool   `json:"working"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// ParseWeekSchedule decodes the stored schedule document. Empty input is an
// empty schedule. Day names are matched case-insensitively; anything else
// that is not a valid template is an error.
func ParseWeekSchedule(raw []byte) (WeekSchedule, error) {
	w := WeekSchedule{}
	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		return w, nil
	}

	var days map[string]rawDay
	if err := json.Unmarshal(raw, &days); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	for name, rd := range days {
		weekday, ok := weekdayName(name)
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		day := DaySchedule{Working: rd.Working, Start: DefaultStart, End: DefaultEnd}
		if rd.Start != "" {
			t, err := ParseTimeOfDay(rd.Start)
			if err != nil {
				return nil, fmt.Errorf("%s start: %w", weekday, err)
			}
			day.Start = t
		}
		if rd.End != "" {
			t, err := ParseTimeOfDay(rd.End)
			if err != nil {
				return nil, fmt.Errorf("%s end: %w", weekday, err)
			}
			day.End = t
		}
		if day.Working && day.End <= day.Start {
			return nil, fmt.Errorf("%s: end %s is not after start %s", weekday, day.End, day.Start)
		}
		w[weekday] = day
	}
	return w, nil
}

func weekdayName(s string) (string, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(s)) {
			return d.String(), true
		}
	}
	return "", false
}

// GenerateSlots lists the free slot start times of a working day in order.
// Candidates run every SlotMinutes from Start while they begin before End; a
// trailing partial interval is not offered.
func GenerateSlots(day DaySchedule, booked map[TimeOfDay]bool) []TimeOfDay {
	slots := []TimeOfDay{}
	h, m := day.Start.Hour(), day.Start.Minute()
	endH, endM := day.End.Hour(), day.End.Minute()

	for h < endH || (h == endH && m < endM) {
		t := TimeOfDay(h*60 + m)
		if !booked[t] {
			slots = append(slots, t)
		}
		m += SlotMinutes
		h += m / 60
		m %= 60
	}
	return slots
}
