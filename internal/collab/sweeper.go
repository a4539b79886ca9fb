package collab

import (
	"context"
	"slices"
	"time"

	"github.com/cwrk-planet/collab-service/internal/session"
	"github.com/cwrk-planet/collab-service/pkg/logger"
)

const (
	DefaultSweepInterval     = 30 * time.Second
	DefaultInactivityTimeout = 60 * time.Second
)

// Sweeper периодически выселяет участников без активности дольше timeout.
type Sweeper struct {
	state    *session.State
	out      Outbox
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	metrics  *metrics
}

func NewSweeper(state *session.State, out Outbox, interval, timeout time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	return &Sweeper{
		state:    state,
		out:      out,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
		metrics:  newMetrics(defaultMeter()),
	}
}

func (s *Sweeper) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Run крутится до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.FromContext(ctx).InfoContext(ctx, "inactivity sweeper started",
		"interval", s.interval, "timeout", s.timeout)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce возвращает число выселенных участников.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	deps := s.state.Sweep(s.now(), s.timeout)
	for _, dep := range deps {
		logger.FromContext(ctx).InfoContext(ctx, "evicting inactive participant",
			"document_id", dep.Participant.DocumentID,
			"conn_id", dep.Participant.ConnectionID,
			"user_id", dep.Participant.UserID,
			"idle", s.now().Sub(dep.Participant.LastActivityAt))
		// выселенный тоже получает participant_left о себе: иначе его активность молча игнорируется
		// и клиент не узнает, что нужно заново отправить join_document
		dep.Remaining = append(slices.Clip(dep.Remaining), dep.Participant.ConnectionID)
		announceDeparture(ctx, s.out, dep)
	}
	s.metrics.evicted(ctx, len(deps))
	return len(deps)
}
