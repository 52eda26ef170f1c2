// Package telemetry emits anonymous service metrics to PostHog. No
// request content, file names or model output ever leaves the process;
// only counters and timings.
package telemetry

import (
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
)

// Event names.
const (
	EventOrganizeCompleted = "organize_completed"
	EventOrganizeFailed    = "organize_failed"
	EventBatchCompleted    = "batch_completed"
)

// Client is the interface for telemetry clients. The noop
// implementation serves disabled deployments.
type Client interface {
	// Track sends an event asynchronously; never blocks.
	Track(event string, properties map[string]any)

	// Close flushes pending events.
	Close() error
}

// Properties is a type alias for event properties.
type Properties = map[string]any

// enqueuer is the slice of the PostHog SDK we use; mocked in tests.
type enqueuer interface {
	io.Closer
	Enqueue(msg posthog.Message) error
}

// PostHogClient wraps the PostHog SDK for async delivery.
type PostHogClient struct {
	client     enqueuer
	instanceID string
	version    string
	mu         sync.RWMutex
}

// New builds a telemetry client. Disabled or keyless configurations get
// a noop client.
func New(enabled bool, apiKey, version string) (Client, error) {
	if !enabled || apiKey == "" {
		return &NoopClient{}, nil
	}

	client, err := posthog.NewWithConfig(apiKey, posthog.Config{
		BatchSize: 20,
		Interval:  5 * time.Second,
		// Telemetry must never pollute service logs with transport noise.
		Logger: quietPostHogLogger{},
	})
	if err != nil {
		return nil, err
	}

	return &PostHogClient{
		client:     client,
		instanceID: uuid.NewString(),
		version:    version,
	}, nil
}

// newWithEnqueuer builds a client around a custom enqueuer (tests).
func newWithEnqueuer(enq enqueuer, version string) *PostHogClient {
	return &PostHogClient{
		client:     enq,
		instanceID: uuid.NewString(),
		version:    version,
	}
}

// Track enqueues one event with the standard instance properties.
func (c *PostHogClient) Track(event string, properties map[string]any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return
	}

	props := posthog.NewProperties()
	for k, v := range properties {
		props.Set(k, v)
	}
	props.Set("os", runtime.GOOS)
	props.Set("arch", runtime.GOARCH)
	props.Set("service_version", c.version)
	// No person profiles; the distinct id is a random per-process uuid.
	props.Set("$process_person_profile", false)

	_ = c.client.Enqueue(posthog.Capture{
		DistinctId: c.instanceID,
		Event:      event,
		Properties: props,
	})
}

// Close flushes the queue.
func (c *PostHogClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// NoopClient is used when telemetry is disabled.
type NoopClient struct{}

func (c *NoopClient) Track(event string, properties map[string]any) {}
func (c *NoopClient) Close() error                                  { return nil }

// quietPostHogLogger suppresses PostHog client logs.
type quietPostHogLogger struct{}

func (quietPostHogLogger) Debugf(string, ...interface{}) {}
func (quietPostHogLogger) Logf(string, ...interface{})   {}
func (quietPostHogLogger) Warnf(string, ...interface{})  {}
func (quietPostHogLogger) Errorf(string, ...interface{}) {}
