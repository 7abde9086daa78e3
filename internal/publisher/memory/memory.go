// Package memory contains an in-process publisher for tests and local runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Message captures one publish call with the payload already marshaled,
// mirroring what a real broker would carry on the wire.
type Message struct {
	Topic string
	Data  []byte
}

// Publisher records published messages for later inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// New returns an empty memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish marshals the payload and appends it to the recorded messages.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Topic: topic, Data: data})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of the recorded publishes.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
