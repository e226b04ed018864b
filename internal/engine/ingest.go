package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/user/insightflow/internal/types"
)

// EventOption sets optional fields on events built by the Log* helpers.
type EventOption func(*types.Event)

// WithSession attaches the event to a session.
func WithSession(id types.SessionID) EventOption {
	return func(e *types.Event) { e.SessionID = id }
}

// WithTags sets the event tags.
func WithTags(tags ...string) EventOption {
	return func(e *types.Event) { e.Tags = append(e.Tags, tags...) }
}

// WithData merges kv into the event's structured data.
func WithData(kv map[string]any) EventOption {
	return func(e *types.Event) {
		for k, v := range kv {
			e.Data[k] = v
		}
	}
}

// WithMetadata merges kv into the event metadata.
func WithMetadata(kv map[string]any) EventOption {
	return func(e *types.Event) {
		for k, v := range kv {
			e.Metadata[k] = v
		}
	}
}

// WithTimestamp overrides the event time.
func WithTimestamp(t time.Time) EventOption {
	return func(e *types.Event) { e.Timestamp = t.UTC() }
}

// ErrInvalidEvent wraps every event validation failure.
var ErrInvalidEvent = errors.New("invalid event")

// normalize validates an incoming event and fills defaults in place.
func normalize(e *types.Event) error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if _, err := types.ParseEventType(string(e.Type)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if e.ID == "" {
		e.ID = types.NewEventID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	return nil
}

// LogEvent validates and persists one event.
func (c *Client) LogEvent(ctx context.Context, e *types.Event) (types.EventID, error) {
	if err := c.ensureStarted(); err != nil {
		return "", err
	}
	if err := normalize(e); err != nil {
		c.metrics.EventFailed()
		return "", err
	}
	id, err := c.store.StoreEvent(ctx, e)
	if err != nil {
		c.metrics.EventFailed()
		return "", err
	}
	c.metrics.EventStored(string(e.Type))
	return id, nil
}

// LogEvents persists a batch in order. On failure the ids of the events
// stored before the failing one are returned together with the error.
func (c *Client) LogEvents(ctx context.Context, events []*types.Event) ([]types.EventID, error) {
	if err := c.ensureStarted(); err != nil {
		return nil, err
	}
	for i, e := range events {
		if err := normalize(e); err != nil {
			c.metrics.EventFailed()
			return []types.EventID{}, fmt.Errorf("event %d: %w", i, err)
		}
	}
	ids, err := c.store.StoreEvents(ctx, events)
	for _, e := range events[:len(ids)] {
		c.metrics.EventStored(string(e.Type))
	}
	if err != nil {
		c.metrics.EventFailed()
	}
	return ids, err
}

func (c *Client) logBuilt(ctx context.Context, t types.EventType, source string, build func(*types.Event), opts []EventOption) (types.EventID, error) {
	e := types.NewEvent(t, source)
	build(e)
	for _, opt := range opts {
		opt(e)
	}
	return c.LogEvent(ctx, e)
}

// LogObservation records a camera_analysis event.
func (c *Client) LogObservation(ctx context.Context, source, content string, opts ...EventOption) (types.EventID, error) {
	return c.logBuilt(ctx, types.EventCameraAnalysis, source, func(e *types.Event) {
		e.Content = content
	}, opts)
}

// LogChat records a chat_message event.
func (c *Client) LogChat(ctx context.Context, source, content string, opts ...EventOption) (types.EventID, error) {
	return c.logBuilt(ctx, types.EventChatMessage, source, func(e *types.Event) {
		e.Content = content
	}, opts)
}

// LogSensor records a sensor_reading event with a numeric value.
func (c *Client) LogSensor(ctx context.Context, source string, value float64, opts ...EventOption) (types.EventID, error) {
	return c.logBuilt(ctx, types.EventSensorReading, source, func(e *types.Event) {
		e.NumericValue = &value
	}, opts)
}

// LogActivity records an activity_log event.
func (c *Client) LogActivity(ctx context.Context, source, content string, opts ...EventOption) (types.EventID, error) {
	return c.logBuilt(ctx, types.EventActivityLog, source, func(e *types.Event) {
		e.Content = content
	}, opts)
}

// StartSession opens a new session.
func (c *Client) StartSession(ctx context.Context, source, topic string) (types.SessionID, error) {
	if err := c.ensureStarted(); err != nil {
		return "", err
	}
	return c.store.StartSession(ctx, source, topic)
}

// EndSession closes a session.
func (c *Client) EndSession(ctx context.Context, id types.SessionID) error {
	if err := c.ensureStarted(); err != nil {
		return err
	}
	return c.store.EndSession(ctx, id)
}

// GetSession returns a session by id.
func (c *Client) GetSession(ctx context.Context, id types.SessionID) (*types.Session, error) {
	if err := c.ensureStarted(); err != nil {
		return nil, err
	}
	return c.store.GetSession(ctx, id)
}
