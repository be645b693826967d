package availability

import "time"

// Interval is a half-open [Start, End) span.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [start,end) intersects [b.Start,b.End).
func (b Interval) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && b.Start.Before(end)
}

// OverlapsAny reports whether [start,end) intersects any busy interval.
func OverlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// AvailableSlots returns the windows of length duration, starting every step
// from windowStart, that fit inside [windowStart, windowEnd) and do not
// overlap any busy interval. The result is in chronological order.
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval) []Interval {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) || windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []Interval
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		end := t.Add(duration)
		if !OverlapsAny(t, end, busy) {
			slots = append(slots, Interval{Start: t, End: end})
		}
	}
	return slots
}

// WorkingWindow returns the working-hours window of the civil day containing
// date, interpreted in loc. startOffset and endOffset are offsets from
// midnight.
func WorkingWindow(date time.Time, loc *time.Location, startOffset, endOffset time.Duration) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	d := date.In(loc)
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return midnight.Add(startOffset), midnight.Add(endOffset)
}
