package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewProgressEvent(t *testing.T) {
	taskID := uuid.New()
	before := time.Now().UTC()

	event := NewProgressEvent(taskID, "job submitted")

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, taskID, event.TaskID)
	assert.Equal(t, "job submitted", event.Message)
	assert.False(t, event.CreatedAt.Before(before))
	assert.Equal(t, time.UTC, event.CreatedAt.Location())
}

// MockEventHandler implements the EventHandler interface for testing
type MockEventHandler struct {
	mu           sync.Mutex
	HandledCount int
	LastEvent    *ProgressEvent
	Messages     []string
	HandlerError error
}

// HandleEvent records the event and returns the configured error.
func (h *MockEventHandler) HandleEvent(ctx context.Context, event *ProgressEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.HandledCount++
	h.LastEvent = event
	h.Messages = append(h.Messages, event.Message)
	return h.HandlerError
}
