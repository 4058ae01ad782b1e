// Package observability holds meetiq's Prometheus metrics, OpenTelemetry
// spans and the pub/sub events published while a meeting is monitored.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Pub/sub channels.
const (
	ChannelClassified      = "events.meetiq.classified"
	ChannelProfileSwitched = "events.meetiq.profile_switched"
	ChannelError           = "events.meetiq.error"
)

// EventHeader is common to every event. TraceID is filled in by the
// EventEmitter from the publishing context.
type EventHeader struct {
	EventID   string    `json:"event_id"`
	SessionID string    `json:"session_id"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newHeader(sessionID string) EventHeader {
	return EventHeader{
		EventID:   uuid.NewString(),
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
}

func (h *EventHeader) header() *EventHeader { return h }

type event interface {
	header() *EventHeader
}

// ClassifiedEvent: a classification attempt finished.
type ClassifiedEvent struct {
	EventHeader
	Type       string `json:"type"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
	Semantic   bool   `json:"semantic"`
}

func NewClassifiedEvent(sessionID, meetingType string, confidence int, reasoning string, semantic bool) *ClassifiedEvent {
	return &ClassifiedEvent{
		EventHeader: newHeader(sessionID),
		Type:        meetingType,
		Confidence:  confidence,
		Reasoning:   reasoning,
		Semantic:    semantic,
	}
}

// ProfileSwitchedEvent: the monitor swapped the scoring profile.
type ProfileSwitchedEvent struct {
	EventHeader
	From       string `json:"from"`
	To         string `json:"to"`
	Confidence int    `json:"confidence"`
}

func NewProfileSwitchedEvent(sessionID, from, to string, confidence int) *ProfileSwitchedEvent {
	return &ProfileSwitchedEvent{
		EventHeader: newHeader(sessionID),
		From:        from,
		To:          to,
		Confidence:  confidence,
	}
}

// ErrorEvent: a collaborator (semantic classifier or sink) failed.
type ErrorEvent struct {
	EventHeader
	Stage     string `json:"stage"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func NewErrorEvent(sessionID, stage, errorType, message string, retryable bool) *ErrorEvent {
	return &ErrorEvent{
		EventHeader: newHeader(sessionID),
		Stage:       stage,
		ErrorType:   errorType,
		Message:     message,
		Retryable:   retryable,
	}
}

// EventPublisher delivers an event to a channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, event interface{}) error
	Close() error
}

// RedisEventPublisher JSON-encodes events and hands them to a publish
// function, normally (*redis.Client).Publish.
type RedisEventPublisher struct {
	publish func(ctx context.Context, channel string, message interface{}) error
}

func NewRedisEventPublisher(publishFn func(ctx context.Context, channel string, message interface{}) error) *RedisEventPublisher {
	return &RedisEventPublisher{publish: publishFn}
}

func (p *RedisEventPublisher) Publish(ctx context.Context, channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", channel, err)
	}
	return p.publish(ctx, channel, data)
}

// Close does nothing; the Redis client belongs to the caller.
func (p *RedisEventPublisher) Close() error { return nil }

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (discardPublisher) Close() error                                       { return nil }

// EventEmitter routes each event type to its channel.
type EventEmitter struct {
	publisher EventPublisher
}

// NewEventEmitter wraps publisher. A nil publisher discards events.
func NewEventEmitter(publisher EventPublisher) *EventEmitter {
	if publisher == nil {
		publisher = discardPublisher{}
	}
	return &EventEmitter{publisher: publisher}
}

func (e *EventEmitter) emit(ctx context.Context, channel string, ev event) error {
	if id := GetTraceID(ctx); id != "" {
		ev.header().TraceID = id
	}
	return e.publisher.Publish(ctx, channel, ev)
}

func (e *EventEmitter) EmitClassified(ctx context.Context, ev *ClassifiedEvent) error {
	return e.emit(ctx, ChannelClassified, ev)
}

func (e *EventEmitter) EmitProfileSwitched(ctx context.Context, ev *ProfileSwitchedEvent) error {
	return e.emit(ctx, ChannelProfileSwitched, ev)
}

func (e *EventEmitter) EmitError(ctx context.Context, ev *ErrorEvent) error {
	return e.emit(ctx, ChannelError, ev)
}

func (e *EventEmitter) Close() error {
	return e.publisher.Close()
}
