package calendar

import (
	"fmt"
	"time"
)

const DaysPerWeek = 7

// Week is seven consecutive days starting at the grid's week start.
type Week [DaysPerWeek]Day

// Grid is the month view for one reference date. It is derived on demand
// and never cached; callers recompute it whenever the reference changes.
type Grid struct {
	Year      int
	Month     time.Month
	WeekStart time.Weekday

	// Location is the reference date's zone. Event timestamps are
	// converted into it before they are placed on a day.
	Location *time.Location

	Weeks []Week
}

// WeeksCovering builds the grid for the month containing ref. The first
// cell is the last weekStart at or before the 1st, the last cell is the
// first day before the next weekStart at or after the month's last day.
func WeeksCovering(ref time.Time, weekStart time.Weekday) (Grid, error) {
	if ref.IsZero() || ref.Year() < 1 || ref.Year() > 9999 {
		return Grid{}, fmt.Errorf("%w: %v", ErrInvalidDate, ref)
	}
	if weekStart < time.Sunday || weekStart > time.Saturday {
		return Grid{}, fmt.Errorf("%w: %d", ErrInvalidWeekStart, weekStart)
	}

	year, month, _ := ref.Date()
	first := Day{Year: year, Month: month, Day: 1}
	last := Day{Year: year, Month: month, Day: daysIn(year, month)}

	lead := (int(first.Weekday()) - int(weekStart) + DaysPerWeek) % DaysPerWeek
	weekEnd := (int(weekStart) + DaysPerWeek - 1) % DaysPerWeek
	trail := (weekEnd - int(last.Weekday()) + DaysPerWeek) % DaysPerWeek

	start := first.AddDays(-lead)
	total := lead + last.Day + trail

	g := Grid{
		Year:      year,
		Month:     month,
		WeekStart: weekStart,
		Location:  ref.Location(),
		Weeks:     make([]Week, 0, total/DaysPerWeek),
	}
	for w := 0; w < total/DaysPerWeek; w++ {
		var week Week
		for i := range week {
			week[i] = start.AddDays(w*DaysPerWeek + i)
		}
		g.Weeks = append(g.Weeks, week)
	}
	return g, nil
}

// Days returns every cell of the grid in display order.
func (g Grid) Days() []Day {
	out := make([]Day, 0, len(g.Weeks)*DaysPerWeek)
	for _, w := range g.Weeks {
		out = append(out, w[:]...)
	}
	return out
}

// First and Last are the grid's corner cells. Both are zero for an empty grid.
func (g Grid) First() Day {
	if len(g.Weeks) == 0 {
		return Day{}
	}
	return g.Weeks[0][0]
}

func (g Grid) Last() Day {
	if len(g.Weeks) == 0 {
		return Day{}
	}
	return g.Weeks[len(g.Weeks)-1][DaysPerWeek-1]
}

// Contains reports whether d is one of the grid's cells, including the
// padding days from neighbouring months.
func (g Grid) Contains(d Day) bool {
	if len(g.Weeks) == 0 {
		return false
	}
	return !d.Before(g.First()) && !g.Last().Before(d)
}

// InMonth reports whether d belongs to the grid's own month.
func (g Grid) InMonth(d Day) bool {
	return d.Year == g.Year && d.Month == g.Month
}
