package tasks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

// TypeBusPrefix prefixes the task type of every bus message; the rest of the
// type is the channel, e.g. "bus:/turn".
const TypeBusPrefix = "bus:"

// BusPayload is the task body of a queued bus message.
type BusPayload struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// NewBusTask wraps an encoded bus message into an asynq task.
func NewBusTask(channel string, payload []byte, opts ...asynq.Option) (*asynq.Task, error) {
	if !json.Valid(payload) {
		return nil, fmt.Errorf("tasks: payload for %s is not valid JSON", channel)
	}
	data, err := json.Marshal(BusPayload{Channel: channel, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("tasks: marshal bus payload for %s: %w", channel, err)
	}
	return asynq.NewTask(TypeBusPrefix+channel, data, opts...), nil
}

// ParseBusTask extracts the bus message from a task.
func ParseBusTask(t *asynq.Task) (BusPayload, error) {
	var p BusPayload
	if !strings.HasPrefix(t.Type(), TypeBusPrefix) {
		return p, fmt.Errorf("tasks: %q is not a bus task", t.Type())
	}
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("tasks: unmarshal bus payload: %w", err)
	}
	if p.Channel == "" {
		p.Channel = strings.TrimPrefix(t.Type(), TypeBusPrefix)
	}
	return p, nil
}
