package interop

import (
	"context"
	"sync"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/agent"
	"github.com/robfig/cron/v3"
)

// housekeeper expires unclaimed opened-app contexts on a cron schedule.
type housekeeper struct {
	agent    *agent.DesktopAgent
	schedule string
	logger   desktopagent.Logger
	emit     func(ctx context.Context, eventType string, data map[string]any)

	mu   sync.Mutex
	cron *cron.Cron
}

func newHousekeeper(a *agent.DesktopAgent, schedule string, logger desktopagent.Logger,
	emit func(ctx context.Context, eventType string, data map[string]any)) *housekeeper {
	return &housekeeper{agent: a, schedule: schedule, logger: logger, emit: emit}
}

func (h *housekeeper) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.schedule == "" || h.cron != nil {
		return nil
	}

	c := cron.New()
	runCtx := context.WithoutCancel(ctx)
	if _, err := c.AddFunc(h.schedule, func() { h.run(runCtx, time.Now()) }); err != nil {
		return err
	}
	c.Start()
	h.cron = c
	h.logger.Debug("Housekeeping scheduled", "schedule", h.schedule)
	return nil
}

func (h *housekeeper) Stop(ctx context.Context) {
	h.mu.Lock()
	c := h.cron
	h.cron = nil
	h.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

func (h *housekeeper) run(ctx context.Context, now time.Time) int {
	expired := h.agent.ExpireOpenedContexts(now)
	snapshot := h.agent.Snapshot()
	if expired > 0 {
		h.logger.Info("Expired unclaimed opened-app contexts", "count", expired)
	}
	h.logger.Debug("Housekeeping completed",
		"instances", snapshot.Instances, "channels", snapshot.Channels, "pendingStarts", snapshot.PendingStarts)
	h.emit(ctx, EventTypeHousekeepingCompleted, map[string]any{"expiredContexts": expired})
	return expired
}
