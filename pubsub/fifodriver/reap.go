// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

// Crash recovery utilities. A crashed subscriber leaves its channel
// directory behind; publishers skip it (the FIFO has no reader) but
// never remove it, since reaping a directory a publisher does not own
// is unsafe. Reaping is an explicit administrative action, never an
// implicit side effect of publish or fetch.

package fifodriver

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/fifobus/fifobus/flextimer"
)

// ReapStale removes channel directories whose mtime is older than
// olderThan and whose FIFO cannot be opened for writing (no reader is
// attached). Returns the number of directories removed.
func (d *FifoDriver) ReapStale(olderThan time.Duration) (int, error) {
	dirs, err := d.ChannelDirs()
	if err != nil {
		return 0, err
	}
	reaped := 0
	cutoff := time.Now().Add(-olderThan)
	for _, dir := range dirs {
		fi, err := os.Stat(dir)
		if err != nil || fi.ModTime().After(cutoff) {
			continue
		}
		if channelHasReader(filepath.Join(dir, queueFileName)) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			d.log.Warnf("ReapStale: remove %s: %v", dir, err)
			continue
		}
		d.log.Noticef("ReapStale: removed %s", dir)
		reaped++
	}
	return reaped, nil
}

// channelHasReader probes the FIFO by opening the write end
// non-blocking: success means a reader holds it open. A missing FIFO
// counts as readerless (a half-created or half-removed directory).
func channelHasReader(queuePath string) bool {
	fd, err := unix.Open(queuePath, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return false
	}
	unix.Close(fd)
	return true
}

// ListActiveChannels returns the sorted, deduplicated patterns of
// channels whose owning process is still alive.
func (d *FifoDriver) ListActiveChannels() ([]string, error) {
	return d.listChannels(true)
}

// ListInactiveChannels returns the sorted, deduplicated patterns of
// channels whose owning process is gone.
func (d *FifoDriver) ListInactiveChannels() ([]string, error) {
	return d.listChannels(false)
}

func (d *FifoDriver) listChannels(wantAlive bool) ([]string, error) {
	dirs, err := d.ChannelDirs()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, dir := range dirs {
		raw, err := os.ReadFile(filepath.Join(dir, patternFileName))
		if err != nil {
			continue
		}
		if channelAlive(dir) == wantAlive {
			seen[string(raw)] = true
		}
	}
	patterns := make([]string, 0, len(seen))
	for pattern := range seen {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	return patterns, nil
}

// channelAlive checks the recorded owner pid; when the pid sidecar is
// unusable it falls back to probing the FIFO for a reader.
func channelAlive(dir string) bool {
	raw, err := os.ReadFile(filepath.Join(dir, pidFileName))
	if err == nil {
		if pid, err := strconv.Atoi(string(raw)); err == nil && pid > 0 {
			err := unix.Kill(pid, 0)
			return err == nil || errors.Is(err, unix.EPERM)
		}
	}
	return channelHasReader(filepath.Join(dir, queueFileName))
}

// Reaper periodically sweeps stale channel directories. Administrative
// opt-in; create with NewReaper, run with Run in a goroutine and stop
// with Stop.
type Reaper struct {
	driver    *FifoDriver
	olderThan time.Duration
	doneChan  chan struct{}
}

// NewReaper returns a reaper sweeping channels staler than olderThan.
func (d *FifoDriver) NewReaper(olderThan time.Duration) *Reaper {
	return &Reaper{
		driver:    d,
		olderThan: olderThan,
		doneChan:  make(chan struct{}),
	}
}

// Run sweeps on a randomized interval until Stop is called.
func (r *Reaper) Run() {
	ticker := flextimer.NewRangeTicker(r.olderThan/2, r.olderThan)
	defer ticker.StopTicker()
	for {
		select {
		case <-r.doneChan:
			return
		case <-ticker.C:
			if _, err := r.driver.ReapStale(r.olderThan); err != nil {
				r.driver.log.Warnf("Reaper: %v", err)
			}
		}
	}
}

// Stop terminates Run.
func (r *Reaper) Stop() {
	close(r.doneChan)
}
