// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

package pubsub

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/fifobus/fifobus/base"
)

// maxPollInterval bounds one wait on the delivery queue so the loop can
// notice signals and the deadline.
const maxPollInterval = time.Second

type channelState byte

const (
	stateConstructed channelState = iota
	stateOpen
	stateClosed
)

// ChannelImpl - Channel implementation. Never instantiate directly;
// call PubSub.NewChannel.
type ChannelImpl struct {
	pattern  string
	matcher  *TopicMatcher
	instance uuid.UUID
	state    channelState
	driver   DriverSubscriber
	log      *base.LogObject
}

// Open acquires the channel's endpoint resources. Calling Open on an
// already-open channel is a no-op; a closed channel may be reopened as
// a fresh endpoint.
func (ch *ChannelImpl) Open() error {
	if ch.state == stateOpen {
		return nil
	}
	if err := ch.driver.Open(); err != nil {
		return fmt.Errorf("Open(%s): %w", ch.pattern, err)
	}
	ch.state = stateOpen
	ch.log.Functionf("Open(%s) at %s", ch.pattern, ch.driver.Directory())
	return nil
}

// Close releases the endpoint and discards pending messages. Runs to
// completion on every exit path; double-close is a no-op.
func (ch *ChannelImpl) Close() {
	if ch.state != stateOpen {
		ch.state = stateClosed
		return
	}
	ch.state = stateClosed
	if err := ch.driver.Close(); err != nil {
		// Best effort; a leftover directory is reaped by ReapStale.
		ch.log.Warnf("Close(%s): %v", ch.pattern, err)
	}
	ch.log.Functionf("Close(%s) done", ch.pattern)
}

// Fetch returns one pending message without blocking, or nil when the
// queue is empty. The payload is removed after a successful read; a
// payload already consumed by another fetcher yields nil.
func (ch *ChannelImpl) Fetch() (*Message, error) {
	if ch.state != stateOpen {
		return nil, fmt.Errorf("Fetch(%s): %w", ch.pattern, ErrChannelNotOpen)
	}
	id, ok, err := ch.driver.NextID()
	if err != nil {
		return nil, fmt.Errorf("Fetch(%s): %w", ch.pattern, err)
	}
	if !ok {
		return nil, nil
	}
	payload, found, err := ch.driver.Consume(id)
	if err != nil {
		return nil, fmt.Errorf("Fetch(%s): id %d: %w", ch.pattern, id, err)
	}
	if !found {
		ch.log.Debugf("Fetch(%s): payload %d already gone", ch.pattern, id)
		return nil, nil
	}
	msg, err := DecodeMessage(payload)
	if err != nil {
		return nil, fmt.Errorf("Fetch(%s): id %d: %w", ch.pattern, id, err)
	}
	return msg, nil
}

// Subscribe delivers messages to handler until the timeout elapses or a
// SIGINT/SIGTERM arrives; timeout 0 means run until signalled. The
// signal check is cooperative, at each loop boundary. A handler error
// aborts the loop and is surfaced with the partial count.
func (ch *ChannelImpl) Subscribe(handler Handler, timeout time.Duration) (int, error) {
	if timeout < 0 {
		return 0, fmt.Errorf("Subscribe(%s): negative timeout: %w",
			ch.pattern, ErrInvalidArgument)
	}
	if ch.state != stateOpen {
		return 0, fmt.Errorf("Subscribe(%s): %w", ch.pattern, ErrChannelNotOpen)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	count := 0
	for {
		select {
		case sig := <-sigChan:
			ch.log.Noticef("Subscribe(%s): %v after %d messages", ch.pattern, sig, count)
			return count, nil
		default:
		}

		wait := maxPollInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return count, nil
			}
			if remaining < wait {
				wait = remaining
			}
		}

		ready, err := ch.driver.WaitReadable(wait)
		if err != nil {
			return count, fmt.Errorf("Subscribe(%s): %w", ch.pattern, err)
		}
		if !ready {
			continue
		}
		msg, err := ch.Fetch()
		if err != nil {
			return count, err
		}
		if msg == nil {
			continue
		}
		if err := handler(msg); err != nil {
			return count, fmt.Errorf("Subscribe(%s): handler: %w", ch.pattern, err)
		}
		count++
	}
}

// Pattern returns the subscriber topic this channel was constructed
// with.
func (ch *ChannelImpl) Pattern() string {
	return ch.pattern
}

// Matcher returns the compiled matcher for the channel's pattern.
func (ch *ChannelImpl) Matcher() *TopicMatcher {
	return ch.matcher
}

// Directory returns the endpoint's on-disk location.
func (ch *ChannelImpl) Directory() string {
	return ch.driver.Directory()
}

// IsOpen reports whether the channel is currently open.
func (ch *ChannelImpl) IsOpen() bool {
	return ch.state == stateOpen
}
