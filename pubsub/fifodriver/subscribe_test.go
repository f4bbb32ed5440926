// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

package fifodriver

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestSubscriberLifecycle(t *testing.T) {
	driver := newTestDriver(t)
	sub := newTestSubscriber(t, driver, "news.=")

	// Nothing exists before Open.
	_, err := os.Stat(sub.Directory())
	assert.True(t, os.IsNotExist(err))

	if err := sub.Open(); err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	fi, err := os.Stat(sub.queuePath)
	if err != nil {
		t.Fatalf("Stat queue failed: %s", err)
	}
	assert.NotZero(t, fi.Mode()&os.ModeNamedPipe, "queue is not a FIFO")

	// The sidecars carry the raw pattern and the owner pid.
	pattern, err := os.ReadFile(filepath.Join(sub.Directory(), patternFileName))
	assert.NoError(t, err)
	assert.Equal(t, "news.=", string(pattern))
	pid, err := os.ReadFile(filepath.Join(sub.Directory(), pidFileName))
	assert.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(pid))

	// Open while open is a no-op.
	fd := sub.fd
	assert.NoError(t, sub.Open())
	assert.Equal(t, fd, sub.fd)

	assert.NoError(t, sub.Close())
	_, err = os.Stat(sub.Directory())
	assert.True(t, os.IsNotExist(err))
	// Close tolerates prior removal.
	assert.NoError(t, sub.Close())
}

// enqueueRaw writes bytes to the subscriber's FIFO the way a publisher
// would: one non-blocking write per chunk.
func enqueueRaw(t *testing.T, sub *Subscriber, chunk string) {
	t.Helper()
	fd, err := unix.Open(sub.queuePath, unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("open queue for write failed: %s", err)
	}
	defer unix.Close(fd)
	if _, err := unix.Write(fd, []byte(chunk)); err != nil {
		t.Fatalf("write queue failed: %s", err)
	}
}

func TestNextIDTokenBuffering(t *testing.T) {
	driver := newTestDriver(t)
	sub := newTestSubscriber(t, driver, "evt")
	if err := sub.Open(); err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	defer sub.Close()

	// Empty queue.
	_, ok, err := sub.NextID()
	assert.NoError(t, err)
	assert.False(t, ok)

	// A partial token is buffered, not returned.
	enqueueRaw(t, sub, "123")
	_, ok, err = sub.NextID()
	assert.NoError(t, err)
	assert.False(t, ok)

	// Completing it yields the whole token; a bad token is dropped.
	enqueueRaw(t, sub, "45\nbogus\n678\n")
	id, ok, err := sub.NextID()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(12345), id)
	id, ok, err = sub.NextID()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(678), id)
	_, ok, err = sub.NextID()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestWaitReadable(t *testing.T) {
	driver := newTestDriver(t)
	sub := newTestSubscriber(t, driver, "evt")
	if err := sub.Open(); err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	defer sub.Close()

	start := time.Now()
	ready, err := sub.WaitReadable(100 * time.Millisecond)
	assert.NoError(t, err)
	assert.False(t, ready)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	enqueueRaw(t, sub, "42\n")
	ready, err = sub.WaitReadable(time.Second)
	assert.NoError(t, err)
	assert.True(t, ready)
}

func TestConsume(t *testing.T) {
	driver := newTestDriver(t)
	sub := newTestSubscriber(t, driver, "evt")
	if err := sub.Open(); err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	defer sub.Close()

	payloadPath := filepath.Join(sub.Directory(), "42")
	if err := os.WriteFile(payloadPath, []byte("payload"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %s", err)
	}

	data, found, err := sub.Consume(42)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("payload"), data)
	_, err = os.Stat(payloadPath)
	assert.True(t, os.IsNotExist(err), "payload not unlinked")

	// Consuming an id that is already gone is not an error.
	_, found, err = sub.Consume(42)
	assert.NoError(t, err)
	assert.False(t, found)
}
