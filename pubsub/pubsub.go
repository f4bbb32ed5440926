// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

// Brokerless publish/subscribe over a shared directory. There is no
// daemon: every operation runs in the calling process against the
// storage the Driver provides. Publishing fans a message out to every
// live channel whose pattern matches the topic; each channel owns an
// independent delivery queue.

package pubsub

import (
	"fmt"
	"sync"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/fifobus/fifobus/base"
)

// PubSub ties a Driver to the user-facing API. It manages the creation
// of channels and the shared fan-out publisher. Should not be
// instantiated directly; use New.
type PubSub struct {
	driver    Driver
	logger    *logrus.Logger
	log       *base.LogObject
	pubOnce   sync.Once
	publisher DriverPublisher
	pubErr    error
}

// New creates a PubSub on the given driver.
func New(driver Driver, logger *logrus.Logger, log *base.LogObject) *PubSub {
	return &PubSub{
		driver: driver,
		logger: logger,
		log:    log,
	}
}

// NewChannel creates a channel for the given subscriber pattern in
// state constructed; nothing is acquired until Open. Two channels with
// the same pattern are independent endpoints and each receive every
// matching message.
func (p *PubSub) NewChannel(pattern string) (Channel, error) {
	matcher, err := CompileTopic(pattern)
	if err != nil {
		return nil, err
	}
	instance, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("NewChannel(%s): uuid: %w", pattern, err)
	}
	driver, err := p.driver.Subscriber(pattern, instance)
	if err != nil {
		return nil, fmt.Errorf("NewChannel(%s): %w", pattern, err)
	}
	ch := &ChannelImpl{
		pattern:  pattern,
		matcher:  matcher,
		instance: instance,
		state:    stateConstructed,
		driver:   driver,
		log:      base.NewChannelLogObject(p.log, pattern, instance),
	}
	p.log.Functionf("NewChannel(%s) instance %s", pattern, instance)
	return ch, nil
}

// Publish sends content to every live channel matching the concrete
// topic and returns the number of channels delivered to. Zero matching
// channels is not an error. Races with channels closing mid-delivery
// are silently recovered; only unexpected I/O failures surface.
func (p *PubSub) Publish(topic string, content []byte, headers Headers) (int, error) {
	if err := ValidatePublishTopic(topic); err != nil {
		return 0, err
	}
	if err := headers.Validate(); err != nil {
		return 0, err
	}
	pub, err := p.getPublisher()
	if err != nil {
		return 0, err
	}
	msg := NewMessage(topic, content, headers)
	count, err := pub.Deliver(msg.ID, topic, msg.Encode())
	if err != nil {
		return count, fmt.Errorf("Publish(%s): %w", topic, err)
	}
	p.log.Debugf("Publish(%s) id %d delivered to %d channels", topic, msg.ID, count)
	return count, nil
}

// Stop terminates the publisher's background upkeep, if it was started.
func (p *PubSub) Stop() {
	if p.publisher != nil {
		if err := p.publisher.Stop(); err != nil {
			p.log.Warnf("Stop: %v", err)
		}
	}
}

// Log returns the LogObject the PubSub was created with.
func (p *PubSub) Log() *base.LogObject {
	return p.log
}

func (p *PubSub) getPublisher() (DriverPublisher, error) {
	p.pubOnce.Do(func() {
		p.publisher, p.pubErr = p.driver.Publisher()
		if p.pubErr != nil {
			return
		}
		p.pubErr = p.publisher.Start()
	})
	return p.publisher, p.pubErr
}
