package logger

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/event"
)

// NewMongoMonitor returns a command monitor that logs MongoDB commands using
// slog with our schema. Only time, level, msg at root; all attributes land
// under the top-level `data` group thanks to the default logger init.
// Commands slower than the threshold are logged at Warn.
func NewMongoMonitor() *event.CommandMonitor {
	const slowThreshold = 200 * time.Millisecond

	return &event.CommandMonitor{
		Started: func(ctx context.Context, evt *event.CommandStartedEvent) {
			FromContext(ctx).Debug("mongo command started",
				"command", evt.CommandName,
				"database", evt.DatabaseName,
				"request_id", evt.RequestID,
			)
		},
		Succeeded: func(ctx context.Context, evt *event.CommandSucceededEvent) {
			attrs := []any{
				"command", evt.CommandName,
				"request_id", evt.RequestID,
				"elapsed_ms", float64(evt.Duration.Microseconds()) / 1000.0,
			}
			if evt.Duration > slowThreshold {
				attrs = append(attrs, "slow", true, "threshold_ms", float64(slowThreshold.Microseconds())/1000.0)
				FromContext(ctx).Warn("mongo command slow", attrs...)
				return
			}
			FromContext(ctx).Debug("mongo command", attrs...)
		},
		Failed: func(ctx context.Context, evt *event.CommandFailedEvent) {
			FromContext(ctx).Error("mongo command failed",
				"command", evt.CommandName,
				"request_id", evt.RequestID,
				"elapsed_ms", float64(evt.Duration.Microseconds())/1000.0,
				"err", evt.Failure,
			)
		},
	}
}
