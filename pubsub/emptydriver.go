// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

package pubsub

import (
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
)

// Enable testing of pubsub when no actual filesystem is needed. The
// driver keeps every endpoint's queue and payload store in memory;
// matching uses the same compiled matchers as the real driver.

// EmptyDriver struct
type EmptyDriver struct {
	mutex     sync.Mutex
	endpoints []*EmptyDriverSubscriber
}

// Publisher function
func (e *EmptyDriver) Publisher() (DriverPublisher, error) {
	return &EmptyDriverPublisher{driver: e}, nil
}

// Subscriber function
func (e *EmptyDriver) Subscriber(pattern string, instance uuid.UUID) (DriverSubscriber, error) {
	matcher, err := CompileTopic(pattern)
	if err != nil {
		return nil, err
	}
	sub := &EmptyDriverSubscriber{
		driver:   e,
		matcher:  matcher,
		instance: instance,
		payloads: make(map[uint64][]byte),
	}
	return sub, nil
}

// EmptyDriverPublisher struct
type EmptyDriverPublisher struct {
	driver *EmptyDriver
}

// Start function
func (e *EmptyDriverPublisher) Start() error {
	return nil
}

// Deliver function
func (e *EmptyDriverPublisher) Deliver(id uint64, topic string, payload []byte) (int, error) {
	e.driver.mutex.Lock()
	defer e.driver.mutex.Unlock()
	count := 0
	for _, sub := range e.driver.endpoints {
		if !sub.matcher.Match(topic) {
			continue
		}
		sub.mutex.Lock()
		if _, dup := sub.payloads[id]; !dup {
			sub.payloads[id] = append([]byte(nil), payload...)
			sub.queue = append(sub.queue, id)
			count++
		}
		sub.mutex.Unlock()
	}
	return count, nil
}

// Stop function
func (e *EmptyDriverPublisher) Stop() error {
	return nil
}

// EmptyDriverSubscriber struct
type EmptyDriverSubscriber struct {
	driver   *EmptyDriver
	matcher  *TopicMatcher
	instance uuid.UUID
	mutex    sync.Mutex
	queue    []uint64
	payloads map[uint64][]byte
}

// Open function
func (e *EmptyDriverSubscriber) Open() error {
	e.driver.mutex.Lock()
	defer e.driver.mutex.Unlock()
	for _, sub := range e.driver.endpoints {
		if sub == e {
			return nil
		}
	}
	e.driver.endpoints = append(e.driver.endpoints, e)
	return nil
}

// Directory function
func (e *EmptyDriverSubscriber) Directory() string {
	return "empty:" + SanitizePattern(e.matcher.Pattern()) + "." + e.instance.String()
}

// WaitReadable function
func (e *EmptyDriverSubscriber) WaitReadable(timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		e.mutex.Lock()
		ready := len(e.queue) > 0
		e.mutex.Unlock()
		if ready || !time.Now().Before(deadline) {
			return ready, nil
		}
		time.Sleep(time.Millisecond)
	}
}

// NextID function
func (e *EmptyDriverSubscriber) NextID() (uint64, bool, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if len(e.queue) == 0 {
		return 0, false, nil
	}
	id := e.queue[0]
	e.queue = e.queue[1:]
	return id, true, nil
}

// Consume function
func (e *EmptyDriverSubscriber) Consume(id uint64) ([]byte, bool, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	payload, ok := e.payloads[id]
	if !ok {
		return nil, false, nil
	}
	delete(e.payloads, id)
	return payload, true, nil
}

// Close function
func (e *EmptyDriverSubscriber) Close() error {
	e.driver.mutex.Lock()
	endpoints := e.driver.endpoints[:0]
	for _, sub := range e.driver.endpoints {
		if sub != e {
			endpoints = append(endpoints, sub)
		}
	}
	e.driver.endpoints = endpoints
	e.driver.mutex.Unlock()

	e.mutex.Lock()
	e.queue = nil
	e.payloads = make(map[uint64][]byte)
	e.mutex.Unlock()
	return nil
}
