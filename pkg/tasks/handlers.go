package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethpandaops/viewgraph/pkg/observability"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Reindexer recomputes the embedding of a view
type Reindexer interface {
	Reindex(ctx context.Context, name string) error
}

// TaskHandler handles task execution
type TaskHandler struct {
	log       logrus.FieldLogger
	reindexer Reindexer
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(log logrus.FieldLogger, reindexer Reindexer) *TaskHandler {
	return &TaskHandler{
		log:       log.WithField("component", "task-handler"),
		reindexer: reindexer,
	}
}

// HandleEmbed re-embeds the view named in the task payload
func (h *TaskHandler) HandleEmbed(ctx context.Context, t *asynq.Task) error {
	var payload EmbedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		observability.RecordError("task-handler", "unmarshal_error")

		// Malformed payloads never succeed on retry
		return fmt.Errorf("failed to unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	if payload.ViewName == "" {
		observability.RecordError("task-handler", "empty_view_name")

		return fmt.Errorf("payload has no view name: %w", asynq.SkipRetry)
	}

	startTime := time.Now()

	if err := h.reindexer.Reindex(ctx, payload.ViewName); err != nil {
		observability.RecordTaskComplete(TypeViewEmbed, "failed", time.Since(startTime).Seconds())
		observability.RecordError("task-handler", "reindex_error")

		h.log.WithError(err).WithField("view", payload.ViewName).Error("Failed to re-embed view")

		return fmt.Errorf("reindex error: %w", err)
	}

	observability.RecordTaskComplete(TypeViewEmbed, "success", time.Since(startTime).Seconds())

	h.log.WithFields(logrus.Fields{
		"view":     payload.ViewName,
		"trigger":  payload.Trigger,
		"duration": time.Since(startTime),
	}).Debug("Re-embedded view")

	return nil
}

// Routes returns the task handler routes for Asynq
func (h *TaskHandler) Routes() map[string]asynq.HandlerFunc {
	return map[string]asynq.HandlerFunc{
		TypeViewEmbed: h.HandleEmbed,
	}
}
