package domain

import "time"

// StatSignificanceThreshold is the completion count a weekday stat needs
// before the queue engine trusts it over the service's nominal duration.
const StatSignificanceThreshold = 10

// WeekdayServiceStat is a running average of how long one barber takes for one
// service on a given day of the week. Updated only on ticket completion.
type WeekdayServiceStat struct {
	ID             string
	BarberID       string
	ServiceID      string
	Weekday        time.Weekday
	AvgDuration    float64
	CompletedCount int
	UpdatedAt      time.Time
}

// Significant reports whether enough completions back the average for it to be
// used in wait estimation.
func (s *WeekdayServiceStat) Significant() bool {
	return s.CompletedCount >= StatSignificanceThreshold
}

// Observe folds one more observed duration (minutes) into the running average.
func (s *WeekdayServiceStat) Observe(elapsed float64) {
	s.AvgDuration = (s.AvgDuration*float64(s.CompletedCount) + elapsed) / float64(s.CompletedCount+1)
	s.CompletedCount++
}
