package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	// Payout leg of an escrow resolution. The state transition is already
	// committed when these are queued; the queue only carries the side
	// effect.
	TaskTypePayoutRelease TaskType = "payout_release"
	TaskTypePayoutRefund  TaskType = "payout_refund"

	// Partner-system notification after a settlement event.
	TaskTypeNotifyPartner TaskType = "notify_partner"
)

// Task represents a unit of work in the queue.
type Task struct {
	ID         string                 `json:"id"`
	Type       TaskType               `json:"type"`
	Data       map[string]interface{} `json:"data"`
	ExecuteAt  time.Time              `json:"execute_at"`
	CreatedAt  time.Time              `json:"created_at"`
	Attempts   int                    `json:"attempts"`
	MaxRetries int                    `json:"max_retries"`
}

// Validate checks if the task is valid.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("task ID is required")
	}
	if strings.TrimSpace(string(t.Type)) == "" {
		return fmt.Errorf("task type is required")
	}
	if t.Data == nil {
		t.Data = make(map[string]interface{})
	}
	return nil
}

// GetString returns a string value from task data.
func (t *Task) GetString(key string) string {
	if val, ok := t.Data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetInt64 returns an int64 value from task data. JSON round-trips numbers
// as float64.
func (t *Task) GetInt64(key string) int64 {
	if val, ok := t.Data[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

func generateTaskID() string {
	return uuid.NewString()
}
