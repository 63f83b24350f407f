package monitor

import "time"

// Policy picks the supervisor's polling interval from the hour of day.
type Policy struct {
	// PeakStart and PeakEnd bound the peak window, both inclusive. The window wraps
	// midnight when PeakStart > PeakEnd.
	PeakStart int
	PeakEnd   int
	Short     time.Duration
	Long      time.Duration
}

// DefaultPolicy polls every 10 minutes from 21h through 0h and hourly otherwise.
func DefaultPolicy() Policy {
	return Policy{PeakStart: 21, PeakEnd: 0, Short: 10 * time.Minute, Long: time.Hour}
}

// InPeak reports whether hour (0-23) lies in the peak window.
func (p Policy) InPeak(hour int) bool {
	if p.PeakStart <= p.PeakEnd {
		return hour >= p.PeakStart && hour <= p.PeakEnd
	}
	return hour >= p.PeakStart || hour <= p.PeakEnd
}

// IntervalFor returns the wait before the next round when the current hour is hour.
func (p Policy) IntervalFor(hour int) time.Duration {
	if p.InPeak(hour) {
		return p.Short
	}
	return p.Long
}
