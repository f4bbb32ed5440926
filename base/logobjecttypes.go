// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

package base

import (
	"sync"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

// LogObject : Holds all key value pairs to be logged later.
type LogObject struct {
	Initialized bool
	Fields      map[string]interface{}
	logger      *logrus.Logger
}

// logSourceObjectMap tracks objects for NewSourceLogObject
var logSourceObjectMap sync.Map

// NewSourceLogObject : create an object with source and pid fields.
// Since there might be multiple calls to this for the same source
// we check for an existing one for the source name.
func NewSourceLogObject(logger *logrus.Logger, source string, pid int) *LogObject {
	value, ok := logSourceObjectMap.Load(source)
	if ok {
		object, ok := value.(*LogObject)
		if ok {
			return object
		}
		logrus.Fatalf("NewSourceLogObject: Object found is not of type *LogObject, found: %T",
			value)
	}

	object := new(LogObject)
	object.logger = logger
	object.Initialized = true
	fields := make(map[string]interface{})
	fields["source"] = source
	fields["pid"] = pid
	object.Fields = fields
	logSourceObjectMap.Store(source, object)
	return object
}

// NewChannelLogObject : create an object carrying the channel pattern and
// instance so every log line about a channel endpoint can be correlated.
// A fresh object is created per channel instance; the instance UUID keeps
// two endpoints for the same pattern apart.
func NewChannelLogObject(logBase *LogObject, pattern string, instance uuid.UUID) *LogObject {
	if logBase == nil {
		logrus.Fatal("NewChannelLogObject: logBase is nil")
	}
	object := new(LogObject)
	object.logger = logBase.logger
	fields := make(map[string]interface{})
	for k, v := range logBase.Fields {
		fields[k] = v
	}
	fields["channel_pattern"] = pattern
	fields["channel_instance"] = instance.String()
	object.Fields = fields
	object.Initialized = true
	return object
}

// Logger returns the backing logrus logger.
func (object *LogObject) Logger() *logrus.Logger {
	return object.logger
}
