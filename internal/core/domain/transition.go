package domain

import "time"

// Transition is a deferred status change waiting in the scheduler.
type Transition struct {
	ID         string
	SoftwareID int64
	Target     Status
	DueAt      time.Time
}
