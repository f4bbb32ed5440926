// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

package fifodriver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/fifobus/fifobus/base"
	"github.com/fifobus/fifobus/flextimer"
	"github.com/fifobus/fifobus/pubsub"
	"github.com/fifobus/fifobus/watch"
)

// fullQueueAttempts bounds the retries when a channel's FIFO is full;
// after that the payload just linked is unlinked and the channel is
// skipped.
const fullQueueAttempts = 5

// Publisher implementation of pubsub.DriverPublisher for FifoDriver.
// Safe for concurrent use by multiple goroutines: per-channel ordering
// comes from the kernel's atomic pipe write below PIPE_BUF, and the
// matcher cache carries its own lock.
type Publisher struct {
	driver *FifoDriver
	log    *base.LogObject

	// Compiled matchers for channel directories, keyed by directory
	// path and invalidated by the pattern sidecar's mtime. Without
	// eviction the cache grows with every channel that ever lived.
	mutex    sync.Mutex
	matchers map[string]matcherEntry

	doneChan chan struct{}
	started  bool
}

type matcherEntry struct {
	modTime time.Time
	matcher *pubsub.TopicMatcher
}

// Start launches the cache eviction goroutine, watching the storage
// root for channel directories going away. Deliver works without it;
// the cache just stops shrinking.
func (p *Publisher) Start() error {
	if p.started {
		return nil
	}
	p.started = true
	events := make(chan watch.ChannelEvent)
	go watch.WatchChannelDirs(p.driver.Root(), events, p.doneChan, p.log)
	go func() {
		for {
			select {
			case <-p.doneChan:
				return
			case event := <-events:
				if event.Op == watch.Remove {
					p.mutex.Lock()
					delete(p.matchers, event.Dir)
					p.mutex.Unlock()
				}
			}
		}
	}()
	return nil
}

// Stop terminates the eviction goroutine.
func (p *Publisher) Stop() error {
	if !p.started {
		return nil
	}
	p.started = false
	close(p.doneChan)
	return nil
}

// Deliver stages the payload once under the root, then hard-links it
// into every matching channel directory and writes the id token to
// that channel's FIFO. Channels closing mid-delivery, duplicate ids
// and readerless FIFOs are expected outcomes and are skipped; only
// unexpected failures surface.
func (p *Publisher) Deliver(id uint64, topic string, payload []byte) (int, error) {
	idString := strconv.FormatUint(id, 10)
	tmpPath := filepath.Join(p.driver.Root(), tmpPrefix+idString)
	if err := stageTemp(tmpPath, payload); err != nil {
		return 0, err
	}
	defer os.Remove(tmpPath)

	dirs, err := p.driver.ChannelDirs()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, dir := range dirs {
		matcher := p.matcherFor(dir)
		if matcher == nil || !matcher.Match(topic) {
			continue
		}
		payloadPath := filepath.Join(dir, idString)
		if err := os.Link(tmpPath, payloadPath); err != nil {
			switch {
			case errors.Is(err, unix.EEXIST):
				// Rare id collision; already delivered here.
				p.log.Warnf("Deliver(%s): id %s already in %s", topic, idString, dir)
			case errors.Is(err, os.ErrNotExist):
				// Channel closed mid-enumeration.
				p.log.Debugf("Deliver(%s): %s went away", topic, dir)
			default:
				return count, fmt.Errorf("Deliver(%s): link into %s: %w", topic, dir, err)
			}
			continue
		}
		ok, err := p.enqueue(dir, payloadPath, idString)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

// stageTemp creates the authoritative payload staging file with O_EXCL
// so two publishers racing on the same id cannot interleave.
func stageTemp(tmpPath string, payload []byte) error {
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, queuePerm)
	if err != nil {
		return fmt.Errorf("stage %s: %w", tmpPath, err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return fmt.Errorf("stage %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("stage %s: %w", tmpPath, err)
	}
	return nil
}

// enqueue writes the id token to the channel's FIFO in one write call
// (token is far below PIPE_BUF, so concurrent publishers serialize in
// the kernel). A readerless or vanished FIFO, or one that stays full
// past the bounded retries, undoes the link and skips the channel.
func (p *Publisher) enqueue(dir, payloadPath, idString string) (bool, error) {
	queuePath := filepath.Join(dir, queueFileName)
	fd, err := unix.Open(queuePath, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		switch {
		case errors.Is(err, unix.ENXIO):
			// No reader holds the FIFO open: crashed or closing
			// subscriber. Not ours to reap.
			p.log.Debugf("enqueue: %s has no reader", queuePath)
		case errors.Is(err, unix.ENOENT):
			p.log.Debugf("enqueue: %s went away", queuePath)
		default:
			os.Remove(payloadPath)
			return false, fmt.Errorf("enqueue: open %s: %w", queuePath, err)
		}
		os.Remove(payloadPath)
		return false, nil
	}
	defer unix.Close(fd)

	token := []byte(idString + "\n")
	var ticker flextimer.FlexTickerHandle
	tickerStarted := false
	for attempt := 0; attempt < fullQueueAttempts; attempt++ {
		n, err := unix.Write(fd, token)
		if err == nil && n == len(token) {
			return true, nil
		}
		switch {
		case errors.Is(err, unix.EAGAIN):
			// FIFO full; the subscriber is not draining. Back off
			// briefly before giving up on this channel.
			if !tickerStarted {
				ticker = flextimer.NewExpTicker(time.Millisecond,
					50*time.Millisecond, 0.3)
				defer ticker.StopTicker()
				tickerStarted = true
			}
			<-ticker.C
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EPIPE):
			// Reader disappeared between open and write.
			os.Remove(payloadPath)
			return false, nil
		default:
			os.Remove(payloadPath)
			return false, fmt.Errorf("enqueue: write %s: %w", queuePath, err)
		}
	}
	p.log.Warnf("enqueue: %s still full after %d attempts; skipping",
		queuePath, fullQueueAttempts)
	os.Remove(payloadPath)
	return false, nil
}

// matcherFor returns the compiled matcher for a channel directory, or
// nil when the directory is not (or no longer) a live channel. The
// pattern sidecar is the authoritative pattern source; the directory
// name is sanitized and not reversible.
func (p *Publisher) matcherFor(dir string) *pubsub.TopicMatcher {
	patternPath := filepath.Join(dir, patternFileName)
	fi, err := os.Stat(patternPath)
	if err != nil {
		// Mid-create or mid-teardown; skip this round.
		return nil
	}
	p.mutex.Lock()
	entry, ok := p.matchers[dir]
	p.mutex.Unlock()
	if ok && entry.modTime.Equal(fi.ModTime()) {
		return entry.matcher
	}
	raw, err := os.ReadFile(patternPath)
	if err != nil {
		return nil
	}
	matcher, err := pubsub.CompileTopic(string(raw))
	if err != nil {
		p.log.Warnf("matcherFor(%s): bad pattern %q: %v", dir, raw, err)
		return nil
	}
	p.mutex.Lock()
	p.matchers[dir] = matcherEntry{modTime: fi.ModTime(), matcher: matcher}
	p.mutex.Unlock()
	return matcher
}
