// Package sweeper periodically evicts idle sessions from memory and marks them expired
// in storage.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Evictor interface {
	Sweep(idle time.Duration) int
}

type Expirer interface {
	ExpireSessions(ctx context.Context, before time.Time) (int64, error)
}

type Sweeper struct {
	sessions Evictor
	store    Expirer
	idle     time.Duration
	now      func() time.Time
}

// New builds a sweeper. store may be nil when persistence is disabled.
func New(sessions Evictor, store Expirer, idle time.Duration) *Sweeper {
	return &Sweeper{sessions: sessions, store: store, idle: idle, now: time.Now}
}

// Run performs one sweep.
func (s *Sweeper) Run() {
	evicted := s.sessions.Sweep(s.idle)

	var expired int64
	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		n, err := s.store.ExpireSessions(ctx, s.now().Add(-s.idle))
		if err != nil {
			logrus.WithError(err).Error("Failed to expire stored sessions")
		}
		expired = n
	}

	logrus.WithFields(logrus.Fields{
		"evicted": evicted,
		"expired": expired,
	}).Info("Session sweep finished")
}

// Start schedules Run on the given cron schedule and starts the scheduler.
func Start(schedule string, s *Sweeper) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, s.Run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	logrus.WithField("schedule", schedule).Info("Session sweeper started")
	return c, nil
}
