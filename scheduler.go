package main

import (
	"log/slog"

	"github.com/krinkuto11/acexy-multiplexer/lib/acexy"
	"github.com/robfig/cron/v3"
)

// newSnapshotScheduler logs the registry's session and subscriber
// counts on a fixed cadence, a cheap operational signal for how many
// sessions and viewers are live without having to hit /ace/status from
// outside.
func newSnapshotScheduler(registry *acexy.Registry) *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc("@every 1m", func() {
		slog.Info("registry snapshot", "sessions", registry.Len(), "subscribers", registry.TotalSubscribers())
	})
	if err != nil {
		slog.Error("failed to schedule registry snapshot", "error", err)
	}
	return c
}
