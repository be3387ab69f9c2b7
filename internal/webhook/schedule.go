package webhook

import "time"

// MaxAttempts is the total number of deliveries per webhook, the first included.
const MaxAttempts = 5

// Schedule holds the delay before each attempt, indexed from 0. Entry 0 is
// the first delivery; after failed attempt n (1-indexed) the next one waits
// Schedule[n].
type Schedule []time.Duration

var (
	ProductionSchedule = Schedule{0, time.Minute, 5 * time.Minute, 30 * time.Minute, 2 * time.Hour}
	TestSchedule       = Schedule{0, 5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second}
)

func ScheduleFor(testIntervals bool) Schedule {
	if testIntervals {
		return TestSchedule
	}
	return ProductionSchedule
}

// Next returns the wait before the attempt after attempt, and false once
// attempt was the last one.
func (s Schedule) Next(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt >= MaxAttempts || attempt >= len(s) {
		return 0, false
	}
	return s[attempt], true
}
