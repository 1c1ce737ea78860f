package moderation

import "time"

// Clock is injected so day-rollover and expiry logic is testable without
// waiting for midnight.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

var SystemClock Clock = systemClock{}
