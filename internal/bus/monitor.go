package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/metrics"
)

// FailureMonitor consumes failed-prediction events, logs each one and
// keeps a running tally per pipeline stage.
type FailureMonitor struct {
	logger *slog.Logger
	sub    domain.Subscription

	mu     sync.Mutex
	counts map[domain.Stage]int
}

// WatchFailures subscribes a FailureMonitor to the failed-prediction
// topic of b. Close it to unsubscribe.
func WatchFailures(ctx context.Context, b domain.EventBus, logger *slog.Logger) (*FailureMonitor, error) {
	m := &FailureMonitor{
		logger: logger,
		counts: make(map[domain.Stage]int),
	}
	sub, err := b.Subscribe(ctx, domain.TopicPredictionFailed, m.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", domain.TopicPredictionFailed, err)
	}
	m.sub = sub
	return m, nil
}

func (m *FailureMonitor) handle(ctx context.Context, msg *domain.Message) error {
	var evt domain.PredictionEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		m.logger.Warn("undecodable failure event", "message_id", msg.ID, "error", err)
		return err
	}

	stage := evt.FailedStage
	if stage == "" {
		stage = domain.StageFailed
	}

	m.mu.Lock()
	m.counts[stage]++
	m.mu.Unlock()
	metrics.FailureEventsTotal.WithLabelValues(string(stage)).Inc()

	m.logger.Warn("prediction failed",
		"prediction_id", evt.PredictionID,
		"variant", evt.Variant,
		"stage", stage,
		"error", evt.Error,
	)
	return nil
}

// Counts returns a snapshot of failures seen per stage.
func (m *FailureMonitor) Counts() map[domain.Stage]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.counts)
}

// Close unsubscribes the monitor.
func (m *FailureMonitor) Close() error {
	return m.sub.Unsubscribe()
}
