package extract

import "time"

// FetchWindow bounds which records are relevant to an export call.
// Nil fields are unbounded.
type FetchWindow struct {
	Watermark  *time.Time
	RangeStart *time.Time
	RangeEnd   *time.Time
}

// HasWatermark reports whether the traversal is incremental.
func (w FetchWindow) HasWatermark() bool {
	return w.Watermark != nil
}

// Changed reports whether t is strictly after the watermark.
func (w FetchWindow) Changed(t time.Time) bool {
	return w.Watermark == nil || t.After(*w.Watermark)
}

// InRange reports whether t lies in [RangeStart, RangeEnd).
func (w FetchWindow) InRange(t time.Time) bool {
	if w.RangeStart != nil && t.Before(*w.RangeStart) {
		return false
	}
	if w.RangeEnd != nil && !t.Before(*w.RangeEnd) {
		return false
	}
	return true
}

// MonthlyWindows splits the range of w into calendar-month windows. Every
// window after the first starts overlap earlier than its month so adjacent
// windows share a slice of time; the Deduplicator removes the repeats. The
// watermark is carried into every window. A window without both range
// bounds is returned unchanged.
func MonthlyWindows(w FetchWindow, overlap time.Duration) []FetchWindow {
	if w.RangeStart == nil || w.RangeEnd == nil || !w.RangeStart.Before(*w.RangeEnd) {
		return []FetchWindow{w}
	}
	start, end := w.RangeStart.UTC(), w.RangeEnd.UTC()

	var out []FetchWindow
	cursor := start
	for cursor.Before(end) {
		monthEnd := time.Date(cursor.Year(), cursor.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		if monthEnd.After(end) {
			monthEnd = end
		}

		from := cursor
		if len(out) > 0 {
			from = cursor.Add(-overlap)
			if from.Before(start) {
				from = start
			}
		}
		to := monthEnd

		out = append(out, FetchWindow{
			Watermark:  w.Watermark,
			RangeStart: &from,
			RangeEnd:   &to,
		})
		cursor = monthEnd
	}
	return out
}
