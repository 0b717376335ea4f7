// Package sessions answers whether a market accepts new orders at a given
// time. Crypto trades around the clock; forex follows a weekly window in UTC
// with optional full-day closures.
package sessions

import (
	"fmt"
	"strings"
	"time"

	"zentum/internal/types"
)

// WeekTime is a point in the trading week, in UTC.
type WeekTime struct {
	Day  time.Weekday
	Hour int
	Min  int
}

func (w WeekTime) minutes() int {
	return int(w.Day)*24*60 + w.Hour*60 + w.Min
}

func (w WeekTime) String() string {
	return fmt.Sprintf("%s %02d:%02d UTC", w.Day, w.Hour, w.Min)
}

// ParseWeekTime reads "Sun 22:00" style values.
func ParseWeekTime(s string) (WeekTime, error) {
	parts := strings.Fields(strings.TrimSpace(s))
	if len(parts) != 2 {
		return WeekTime{}, fmt.Errorf("invalid week time %q: want \"Sun 22:00\"", s)
	}
	name := strings.ToLower(parts[0])
	day, ok := weekdays[name[:min(3, len(name))]]
	if !ok {
		return WeekTime{}, fmt.Errorf("invalid weekday in %q", s)
	}
	clock, err := time.Parse("15:04", parts[1])
	if err != nil {
		return WeekTime{}, fmt.Errorf("invalid clock in %q: %w", s, err)
	}
	return WeekTime{Day: day, Hour: clock.Hour(), Min: clock.Minute()}, nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

type Calendar struct {
	forexOpen  WeekTime
	forexClose WeekTime
	holidays   map[string]struct{}
}

func DefaultCalendar() *Calendar {
	return &Calendar{
		forexOpen:  WeekTime{Day: time.Sunday, Hour: 22},
		forexClose: WeekTime{Day: time.Friday, Hour: 22},
		holidays:   map[string]struct{}{},
	}
}

// NewCalendar builds a forex window from open to close and a list of
// YYYY-MM-DD closure dates.
func NewCalendar(open, close string, holidays []string) (*Calendar, error) {
	c := DefaultCalendar()
	var err error
	if strings.TrimSpace(open) != "" {
		if c.forexOpen, err = ParseWeekTime(open); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(close) != "" {
		if c.forexClose, err = ParseWeekTime(close); err != nil {
			return nil, err
		}
	}
	if c.forexOpen == c.forexClose {
		return nil, fmt.Errorf("forex window opens and closes at %s", c.forexOpen)
	}
	for _, h := range holidays {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, h); err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		c.holidays[h] = struct{}{}
	}
	return c, nil
}

func (c *Calendar) IsOpen(m types.Market, t time.Time) bool {
	if m == types.MarketCrypto {
		return true
	}
	t = t.UTC()
	if _, closed := c.holidays[t.Format(time.DateOnly)]; closed {
		return false
	}
	now := WeekTime{Day: t.Weekday(), Hour: t.Hour(), Min: t.Minute()}.minutes()
	open, close := c.forexOpen.minutes(), c.forexClose.minutes()
	if open < close {
		return now >= open && now < close
	}
	// Window wraps the week boundary, e.g. Sunday 22:00 to Friday 22:00.
	return now >= open || now < close
}

type Status struct {
	Market types.Market `json:"market"`
	Open   bool         `json:"open"`
	Window string       `json:"window"`
}

func (c *Calendar) Status(t time.Time) []Status {
	return []Status{
		{Market: types.MarketForex, Open: c.IsOpen(types.MarketForex, t), Window: c.forexOpen.String() + " - " + c.forexClose.String()},
		{Market: types.MarketCrypto, Open: true, Window: "24/7"},
	}
}
