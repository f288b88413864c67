package server

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/helpdesk-livefeed/internal/data"
)

var (
	simulatedAgents = []string{"Ana", "Bruno", "Chen", "Dara"}
	simulatedLines  = []string{
		"Can you share a screenshot?",
		"Restarted the service, please retry.",
		"Escalating to second level.",
		"Works on my side now.",
		"Waiting for the customer to confirm.",
	}
)

// Simulator produces synthetic helpdesk activity so live feeds have
// something to show against the development backend.
type Simulator struct {
	store    *data.Store
	interval time.Duration
	logger   *zap.Logger
	rng      *rand.Rand
}

func NewSimulator(store *data.Store, interval time.Duration, logger *zap.Logger) *Simulator {
	return &Simulator{
		store:    store,
		interval: interval,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run ticks until ctx is cancelled. A non-positive interval disables it.
func (s *Simulator) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("simulator started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

// Step adds one comment to a random open ticket. Every third step on
// average the comment is internal, and each public one raises a
// notification.
func (s *Simulator) Step() {
	var open []data.Ticket
	for _, t := range s.store.Tickets() {
		if !t.Closed {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return
	}

	t := open[s.rng.Intn(len(open))]
	agent := s.rng.Intn(len(simulatedAgents))
	internal := s.rng.Intn(3) == 0

	c, err := s.store.AddComment(t.ID, int64(100+agent), simulatedAgents[agent],
		simulatedLines[s.rng.Intn(len(simulatedLines))], internal)
	if err != nil {
		s.logger.Warn("simulated comment failed", zap.Int64("ticket", t.ID), zap.Error(err))
		return
	}
	if internal {
		return
	}

	s.store.AddNotification(
		fmt.Sprintf("New reply on ticket #%d", t.ID),
		c.Content,
		fmt.Sprintf("/tickets/%d#comment-%d", t.ID, c.ID),
	)
}
