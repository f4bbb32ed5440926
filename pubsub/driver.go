package pubsub

import (
	"time"

	uuid "github.com/satori/go.uuid"
)

// Driver is a backend for channel endpoints and publish fan-out.
type Driver interface {
	// Publisher returns the fan-out engine for this driver. One
	// publisher serves all topics; it is expected to be created once
	// and reused.
	Publisher() (DriverPublisher, error)
	// Subscriber returns the endpoint mechanics for one channel
	// instance. The call must not touch any shared resource; resource
	// acquisition happens in DriverSubscriber.Open.
	Subscriber(pattern string, instance uuid.UUID) (DriverSubscriber, error)
}

// DriverPublisher is the fan-out engine: it delivers one encoded
// message to every live channel whose pattern matches the topic.
type DriverPublisher interface {
	// Start any background upkeep the publisher needs. Expected to
	// return immediately; long-running work belongs in a goroutine
	// owned by the driver.
	Start() error
	// Deliver writes the payload once, links it into every matching
	// channel and enqueues the id token on each channel's queue.
	// Returns the number of channels delivered to. Races with channels
	// closing mid-delivery are expected outcomes, not errors.
	Deliver(id uint64, topic string, payload []byte) (int, error)
	// Stop background upkeep.
	Stop() error
}

// DriverSubscriber is one channel endpoint: a delivery queue plus the
// pending payload store behind it. Not safe for concurrent readers.
type DriverSubscriber interface {
	// Open acquires the endpoint resources. Idempotent.
	Open() error
	// Directory returns the endpoint's on-disk location (diagnostic;
	// in-memory drivers return a placeholder).
	Directory() string
	// WaitReadable blocks until the queue has data, the timeout
	// elapses, or the wait is interrupted; returns whether data is
	// ready. An interrupted wait returns (false, nil).
	WaitReadable(timeout time.Duration) (bool, error)
	// NextID returns the next queued id token without blocking; the
	// second result is false when the queue is empty.
	NextID() (uint64, bool, error)
	// Consume loads and removes the payload for id; the second result
	// is false when the payload is already gone.
	Consume(id uint64) ([]byte, bool, error)
	// Close releases the endpoint and its pending payloads. Idempotent;
	// partial prior removal is tolerated.
	Close() error
}
