// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

package pubsub

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the API. Wrapped instances carry call
// context; test with errors.Is.
var (
	// ErrInvalidTopic : topic string fails validation.
	ErrInvalidTopic = errors.New("invalid topic")
	// ErrInvalidHeader : a header value is not one of the permitted
	// scalar variants.
	ErrInvalidHeader = errors.New("invalid header value")
	// ErrInvalidArgument : an argument is out of range, e.g. a negative
	// subscribe timeout.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrChannelNotOpen : operation requires the channel to be open.
	ErrChannelNotOpen = fmt.Errorf("%w: channel not open", ErrInvalidArgument)
)
