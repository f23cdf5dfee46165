// Package monitor is the long-running host of the coordinator. It schedules
// refresh cycles, keeps the last good snapshot and fans new snapshots and
// status transitions out to subscribers.
package monitor

import (
	"context"
	"sync"
	"time"

	"gitlab.com/nunet/nosana-node-monitor/internal/background_tasks"
	"gitlab.com/nunet/nosana-node-monitor/models"
)

// Refresher produces one snapshot per call.
type Refresher interface {
	Refresh(ctx context.Context) (*models.Snapshot, error)
}

// CacheReporter is implemented by refreshers that can describe their caches.
type CacheReporter interface {
	CacheStatus() models.CacheStatus
}

// TransitionHandler is called when the published status changes to the
// status it was registered for.
type TransitionHandler func(ctx context.Context, from, to models.NodeStatus, snap *models.Snapshot)

type Settings struct {
	Interval time.Duration
	CronExpr string
	// Tick is how often the scheduler polls its triggers.
	Tick time.Duration
}

// Health describes how recent cycles went.
type Health struct {
	NodeAddress         string              `json:"node_address"`
	Available           bool                `json:"available"`
	Status              *models.NodeStatus  `json:"status"`
	LastSuccess         *time.Time          `json:"last_success"`
	LastAttempt         *time.Time          `json:"last_attempt"`
	LastError           *string             `json:"last_error"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	Cycles              int                 `json:"cycles"`
	Caches              *models.CacheStatus `json:"caches"`
}

type Monitor struct {
	refresher Refresher
	node      string
	settings  Settings

	scheduler *background_tasks.Scheduler
	manual    *background_tasks.EventTrigger

	mu       sync.RWMutex
	snapshot *models.Snapshot
	health   Health
	subs     map[int]chan *models.Snapshot
	nextSub  int
	handlers map[string][]TransitionHandler
}

func New(refresher Refresher, node string, settings Settings) *Monitor {
	if settings.Interval <= 0 && settings.CronExpr == "" {
		settings.Interval = 60 * time.Second
	}
	return &Monitor{
		refresher: refresher,
		node:      node,
		settings:  settings,
		manual:    background_tasks.NewEventTrigger(),
		health:    Health{NodeAddress: node},
		subs:      map[int]chan *models.Snapshot{},
		handlers:  map[string][]TransitionHandler{},
	}
}

// Start runs a first cycle right away and then one per interval, plus one
// for every RequestRefresh. Cycles never overlap.
func (m *Monitor) Start(ctx context.Context) {
	var opts []background_tasks.SchedulerOption
	if m.settings.Tick > 0 {
		opts = append(opts, background_tasks.WithTick(m.settings.Tick))
	}
	m.scheduler = background_tasks.NewScheduler(1, opts...)
	m.scheduler.AddTask(&background_tasks.Task{
		Name:        "refresh",
		Description: "poll upstream sources and publish a snapshot of " + m.node,
		Function: func(ctx context.Context, _ []interface{}) error {
			_, err := m.RunOnce(ctx)
			return err
		},
		Triggers: []background_tasks.Trigger{
			&background_tasks.OneTimeTrigger{},
			&background_tasks.PeriodicTrigger{Interval: m.settings.Interval, CronExpr: m.settings.CronExpr},
			m.manual,
		},
	})
	m.scheduler.Start(ctx)
	zlog.Sugar().Infof("monitoring node %s every %s", m.node, m.describeSchedule())
}

// Stop halts scheduling, waits for a running cycle and closes all subscriptions.
func (m *Monitor) Stop() {
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
}

// RequestRefresh asks for a cycle as soon as the current one, if any, ends.
// It returns false when a request is already pending.
func (m *Monitor) RequestRefresh() bool {
	return m.manual.Fire()
}

// RunOnce runs a cycle immediately and publishes its snapshot on success.
// On failure the previous snapshot stays current.
func (m *Monitor) RunOnce(ctx context.Context) (*models.Snapshot, error) {
	attempt := time.Now().UTC()
	snap, err := m.refresher.Refresh(ctx)

	m.mu.Lock()
	m.health.Cycles++
	m.health.LastAttempt = &attempt
	if err != nil {
		msg := err.Error()
		m.health.LastError = &msg
		m.health.ConsecutiveFailures++
		failures := m.health.ConsecutiveFailures
		m.mu.Unlock()
		zlog.Sugar().Warnf("refresh of %s failed (%d in a row), keeping last snapshot: %v", m.node, failures, err)
		return nil, err
	}

	from := models.InitialStatus
	if m.snapshot != nil {
		from = m.snapshot.Status
	}
	m.snapshot = snap
	m.health.Available = true
	m.health.LastError = nil
	m.health.ConsecutiveFailures = 0
	m.health.LastSuccess = &attempt
	status := snap.Status
	m.health.Status = &status

	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			// slow subscriber, drop the stale value and keep the newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	var handlers []TransitionHandler
	if from != snap.Status {
		handlers = append(handlers, m.handlers[snap.Status.TriggerType()]...)
	}
	m.mu.Unlock()

	if from != snap.Status {
		zlog.Sugar().Infof("node %s is now %s", m.node, snap.Status)
	}
	for _, h := range handlers {
		h(ctx, from, snap.Status, snap)
	}
	return snap, nil
}

// Snapshot returns the last published snapshot. ok is false before the
// first successful cycle.
func (m *Monitor) Snapshot() (snap *models.Snapshot, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot, m.snapshot != nil
}

func (m *Monitor) Health() Health {
	m.mu.RLock()
	h := m.health
	m.mu.RUnlock()

	if r, ok := m.refresher.(CacheReporter); ok {
		st := r.CacheStatus()
		h.Caches = &st
	}
	return h
}

// Subscribe returns a channel receiving every published snapshot. Only the
// newest snapshot is kept for a slow reader. The returned function ends the
// subscription.
func (m *Monitor) Subscribe() (<-chan *models.Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan *models.Snapshot, 1)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subs[id]; ok {
				close(ch)
				delete(m.subs, id)
			}
		})
	}
}

// OnTransition registers h for transitions into the status named by
// trigger: "running", "queued" or "offline".
func (m *Monitor) OnTransition(trigger string, h TransitionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[trigger] = append(m.handlers[trigger], h)
}

func (m *Monitor) describeSchedule() string {
	if m.settings.CronExpr != "" {
		return "cron " + m.settings.CronExpr
	}
	return m.settings.Interval.String()
}
