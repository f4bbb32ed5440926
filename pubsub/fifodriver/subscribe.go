// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

package fifodriver

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/fifobus/fifobus/base"
)

// Subscriber implementation of pubsub.DriverSubscriber for FifoDriver:
// one channel directory plus the non-blocking read end of its FIFO.
// Not safe for concurrent readers; the pending token buffer and the
// unlink of consumed payloads are unsynchronized.
type Subscriber struct {
	pattern   string
	dirName   string
	queuePath string
	fd        int // read end of the FIFO, -1 while not open
	pending   []byte
	log       *base.LogObject
}

// Open creates the channel directory, the pattern and pid sidecars and
// the FIFO, then opens the FIFO read end non-blocking. Idempotent.
func (s *Subscriber) Open() error {
	if s.fd >= 0 {
		return nil
	}
	if err := os.MkdirAll(s.dirName, dirPerm); err != nil {
		return fmt.Errorf("Open(%s): %w", s.pattern, err)
	}
	// Sidecars go in before the FIFO: once the FIFO exists publishers
	// consider the directory a live channel.
	if err := writeRename(filepath.Join(s.dirName, patternFileName),
		[]byte(s.pattern), queuePerm); err != nil {
		return fmt.Errorf("Open(%s): %w", s.pattern, err)
	}
	if err := writeRename(filepath.Join(s.dirName, pidFileName),
		[]byte(strconv.Itoa(os.Getpid())), queuePerm); err != nil {
		return fmt.Errorf("Open(%s): %w", s.pattern, err)
	}
	if err := unix.Mkfifo(s.queuePath, queuePerm); err != nil && !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("Open(%s): mkfifo %s: %w", s.pattern, s.queuePath, err)
	}
	// Read-write, so this descriptor itself keeps a writer on the
	// pipe; a pure read end would see EOF whenever no publisher has
	// the FIFO open and poll would degenerate into a spin.
	fd, err := unix.Open(s.queuePath, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("Open(%s): open %s: %w", s.pattern, s.queuePath, err)
	}
	s.fd = fd
	s.pending = nil
	return nil
}

// Directory returns the channel directory path.
func (s *Subscriber) Directory() string {
	return s.dirName
}

// WaitReadable waits for the FIFO to have data, for the timeout to
// elapse, or for a signal to interrupt the wait.
func (s *Subscriber) WaitReadable(timeout time.Duration) (bool, error) {
	if len(s.pending) > 0 && bytes.IndexByte(s.pending, '\n') >= 0 {
		return true, nil
	}
	if s.fd < 0 {
		return false, fmt.Errorf("WaitReadable(%s): not open", s.pattern)
	}
	pfd := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, fmt.Errorf("WaitReadable(%s): %w", s.pattern, err)
	}
	return n > 0 && pfd[0].Revents&unix.POLLIN != 0, nil
}

// NextID returns the next id token from the FIFO without blocking.
// Partial tokens are buffered across calls; tokens that fail to parse
// are dropped.
func (s *Subscriber) NextID() (uint64, bool, error) {
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			token := string(s.pending[:i])
			s.pending = s.pending[i+1:]
			id, err := strconv.ParseUint(token, 10, 64)
			if err != nil {
				s.log.Warnf("NextID(%s): dropping bad token %q", s.pattern, token)
				continue
			}
			return id, true, nil
		}
		if s.fd < 0 {
			return 0, false, fmt.Errorf("NextID(%s): not open", s.pattern)
		}
		var buf [512]byte
		n, err := unix.Read(s.fd, buf[:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return 0, false, nil
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, false, fmt.Errorf("NextID(%s): %w", s.pattern, err)
		}
		if n == 0 {
			return 0, false, nil
		}
		s.pending = append(s.pending, buf[:n]...)
	}
}

// Consume loads and unlinks the payload file for id. A payload that is
// already gone is not an error; a failed unlink is logged and left for
// Close to sweep.
func (s *Subscriber) Consume(id uint64) ([]byte, bool, error) {
	path := filepath.Join(s.dirName, strconv.FormatUint(id, 10))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("Consume(%s): %w", s.pattern, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warnf("Consume(%s): unlink %s: %v", s.pattern, path, err)
	}
	return data, true, nil
}

// Close closes the FIFO descriptor and removes the channel directory
// with all remaining payloads. Partial prior removal is tolerated;
// idempotent.
func (s *Subscriber) Close() error {
	if s.fd >= 0 {
		if err := unix.Close(s.fd); err != nil {
			s.log.Warnf("Close(%s): close fd: %v", s.pattern, err)
		}
		s.fd = -1
	}
	s.pending = nil
	if err := os.RemoveAll(s.dirName); err != nil {
		return fmt.Errorf("Close(%s): %w", s.pattern, err)
	}
	return nil
}
