package calendar

import "runon/internal/model"

// BucketByDay groups events by the day of their Date in grid.Location.
// Every grid day is present in the result, with an empty (non-nil) slice
// when nothing falls on it. Events outside the grid are dropped. Within a
// day, events keep their input order.
func BucketByDay(events []model.Event, grid Grid) map[Day][]model.Event {
	loc := grid.Location
	buckets := make(map[Day][]model.Event, len(grid.Weeks)*DaysPerWeek)
	for _, d := range grid.Days() {
		buckets[d] = []model.Event{}
	}

	for _, ev := range events {
		t := ev.Date
		if loc != nil {
			t = t.In(loc)
		}
		d := DayOf(t)
		if _, ok := buckets[d]; !ok {
			continue
		}
		buckets[d] = append(buckets[d], ev)
	}
	return buckets
}
