// Package notify defines the fire-and-forget notification channel the
// governance engine publishes alerts and remediation signals through.
//
// The engine only issues intent: delivery failures are logged by the
// caller and never retried here. Downstream actors (an operator
// dashboard, a throttling proxy, a paging system) subscribe to the
// topics they care about.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Topics used by the governance engine.
const (
	// TopicAlerts carries threshold breach alerts.
	TopicAlerts = "governance.alerts"

	// TopicRemediation carries throttle/block/switch/degrade signals.
	TopicRemediation = "governance.remediation"

	// TopicEmergency is the separate high-priority channel for
	// emergency shutdown broadcasts.
	TopicEmergency = "governance.emergency"
)

// Publisher delivers a message to a named topic. Implementations must
// be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, message any) error
}

// LogPublisher writes every message to a structured logger. It is the
// default publisher when no downstream channel is wired.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher backed by the given logger.
// A nil logger falls back to slog.Default().
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "notify")}
}

// Publish logs the message as JSON under the topic.
func (p *LogPublisher) Publish(ctx context.Context, topic string, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode message for topic %s: %w", topic, err)
	}
	p.logger.InfoContext(ctx, "notification published",
		"topic", topic,
		"payload", string(payload),
	)
	return nil
}

// Envelope is a published message paired with its topic, as captured
// by ChannelPublisher.
type Envelope struct {
	Topic   string
	Message any
}

// ChannelPublisher delivers messages to an in-process Go channel.
// It is used in tests and by embedders that fan messages out
// themselves. Publishing never blocks: when the channel is full the
// message is dropped and counted.
type ChannelPublisher struct {
	ch      chan Envelope
	mu      sync.Mutex
	dropped int64
}

// NewChannelPublisher creates a publisher with the given buffer size.
func NewChannelPublisher(buffer int) *ChannelPublisher {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelPublisher{ch: make(chan Envelope, buffer)}
}

// Publish sends the message, dropping it if the buffer is full.
func (p *ChannelPublisher) Publish(ctx context.Context, topic string, message any) error {
	select {
	case p.ch <- Envelope{Topic: topic, Message: message}:
		return nil
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		return fmt.Errorf("notification buffer full, dropped message for topic %s", topic)
	}
}

// Messages returns the receive side of the channel.
func (p *ChannelPublisher) Messages() <-chan Envelope {
	return p.ch
}

// Dropped returns the number of messages dropped due to a full buffer.
func (p *ChannelPublisher) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}
