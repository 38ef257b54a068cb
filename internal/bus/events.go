package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/metrics"
)

// TopicFor returns the topic an event is published on.
func TopicFor(evt *domain.PredictionEvent) string {
	if evt.FailedStage != "" {
		return domain.TopicPredictionFailed
	}
	return domain.TopicPredictionCompleted
}

// PublishPrediction publishes evt on its topic and counts the outcome.
func PublishPrediction(ctx context.Context, b domain.EventBus, evt *domain.PredictionEvent) error {
	topic := TopicFor(evt)

	payload, err := json.Marshal(evt)
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("failed to marshal prediction event: %w", err)
	}

	if err := b.Publish(ctx, topic, payload); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(topic, "error").Inc()
		return err
	}
	metrics.EventsPublishedTotal.WithLabelValues(topic, "ok").Inc()
	return nil
}
