package background_tasks

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger interface defines a method to check if a trigger condition is met.
// Triggers are only polled from the scheduler loop.
type Trigger interface {
	IsReady() bool // Returns true if the trigger condition is met.
	Reset()        // Resets the trigger state.
}

// PeriodicTrigger triggers at regular intervals or based on a cron expression.
// When both are set, whichever comes first fires.
type PeriodicTrigger struct {
	Interval      time.Duration // Interval for periodic triggering.
	CronExpr      string        // Cron expression for triggering.
	lastTriggered time.Time     // Last time the trigger was activated.
	schedule      cron.Schedule
	scheduleExpr  string
}

// IsReady checks if the trigger should activate based on time or cron expression.
func (t *PeriodicTrigger) IsReady() bool {
	now := time.Now()
	if t.Interval > 0 && !t.lastTriggered.Add(t.Interval).After(now) {
		return true
	}

	if t.CronExpr != "" {
		schedule, err := t.cronSchedule()
		if err != nil {
			zlog.Sugar().Errorf("Error parsing CronExpr: %v", err)
			return false
		}
		return !schedule.Next(t.lastTriggered).After(now)
	}
	return false
}

func (t *PeriodicTrigger) cronSchedule() (cron.Schedule, error) {
	if t.schedule != nil && t.scheduleExpr == t.CronExpr {
		return t.schedule, nil
	}
	schedule, err := cron.ParseStandard(t.CronExpr)
	if err != nil {
		return nil, err
	}
	t.schedule, t.scheduleExpr = schedule, t.CronExpr
	return schedule, nil
}

// Reset updates the last triggered time to the current time.
func (t *PeriodicTrigger) Reset() {
	t.lastTriggered = time.Now()
}

// EventTrigger triggers based on an external event signaled through a channel.
type EventTrigger struct {
	Trigger chan bool // Channel to signal an event.
}

// NewEventTrigger returns a trigger whose channel holds one pending event;
// further signals while one is pending are dropped by Fire.
func NewEventTrigger() *EventTrigger {
	return &EventTrigger{Trigger: make(chan bool, 1)}
}

// Fire signals the trigger without blocking. It reports whether the event
// was queued.
func (t *EventTrigger) Fire() bool {
	select {
	case t.Trigger <- true:
		return true
	default:
		return false
	}
}

// IsReady checks if there is a signal in the trigger channel.
func (t *EventTrigger) IsReady() bool {
	select {
	case <-t.Trigger:
		return true
	default:
		return false
	}
}

// Reset for EventTrigger does nothing as its state is managed externally.
func (t *EventTrigger) Reset() {}

// OneTimeTrigger triggers once, Delay after the task was added.
type OneTimeTrigger struct {
	Delay        time.Duration // The delay after which to trigger.
	registeredAt time.Time     // Time when the trigger was set.
	fired        bool
}

// Reset registers the trigger. It has no effect once the trigger fired.
func (t *OneTimeTrigger) Reset() {
	if !t.fired && t.registeredAt.IsZero() {
		t.registeredAt = time.Now()
	}
}

// IsReady reports true exactly once, after the delay has passed.
func (t *OneTimeTrigger) IsReady() bool {
	if t.fired || t.registeredAt.IsZero() || t.registeredAt.Add(t.Delay).After(time.Now()) {
		return false
	}
	t.fired = true
	return true
}
