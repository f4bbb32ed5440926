// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

package base

import (
	"testing"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewSourceLogObject(t *testing.T) {
	logger := logrus.New()
	first := NewSourceLogObject(logger, "agent", 42)
	assert.True(t, first.Initialized)
	assert.Equal(t, "agent", first.Fields["source"])
	assert.Equal(t, 42, first.Fields["pid"])

	// Same source yields the same object.
	second := NewSourceLogObject(logger, "agent", 42)
	assert.Same(t, first, second)
}

func TestNewChannelLogObject(t *testing.T) {
	logger := logrus.New()
	logBase := NewSourceLogObject(logger, "channel-test", 1)
	instance, err := uuid.NewV4()
	if err != nil {
		t.Fatalf("uuid failed: %s", err)
	}
	object := NewChannelLogObject(logBase, "news.=", instance)
	assert.True(t, object.Initialized)
	assert.Equal(t, "news.=", object.Fields["channel_pattern"])
	assert.Equal(t, instance.String(), object.Fields["channel_instance"])
	// Base fields are inherited, not shared.
	assert.Equal(t, "channel-test", object.Fields["source"])
	object.Fields["extra"] = true
	_, ok := logBase.Fields["extra"]
	assert.False(t, ok)
}
