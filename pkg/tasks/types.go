// Package tasks queues view re-embedding work on asynq
package tasks

import (
	"fmt"
	"time"
)

const (
	// TypeViewEmbed is the task type for recomputing a view embedding
	TypeViewEmbed = "view:embed"
	// DefaultQueue is the queue embedding tasks are sent to, before prefixing
	DefaultQueue = "embeddings"
)

// Enqueue triggers
const (
	TriggerChange = "change"
	TriggerManual = "manual"
)

// EmbedPayload identifies the view to re-embed
type EmbedPayload struct {
	ViewName   string    `json:"view_name"`
	Trigger    string    `json:"trigger"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// UniqueID returns the task ID; a view has at most one pending embedding task
func (p EmbedPayload) UniqueID() string {
	return fmt.Sprintf("embed:%s", p.ViewName)
}
