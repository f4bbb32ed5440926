// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

// Watch the storage root for channel directories coming and going.
// Emits Create events for the directories present when the watch
// starts, then Create/Remove as subscribers open and close channels.
// Callers run this in a goroutine and consume the event channel.

package watch

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fifobus/fifobus/base"
	"github.com/fifobus/fifobus/flextimer"
)

// Op distinguishes channel directory lifecycle events.
type Op byte

const (
	// Create : a channel directory appeared.
	Create Op = iota
	// Remove : a channel directory went away.
	Remove
)

// ChannelEvent reports one channel directory lifecycle change.
type ChannelEvent struct {
	Op  Op
	Dir string
}

// WatchChannelDirs watches rootDir until done is closed, sending
// ChannelEvents on events. Inotify can drop events under pressure, so
// the root watch is periodically re-added and rescanned.
func WatchChannelDirs(rootDir string, events chan<- ChannelEvent,
	done <-chan struct{}, log *base.LogObject) {

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("WatchChannelDirs: NewWatcher: %v", err)
		return
	}
	defer w.Close()

	send := func(event ChannelEvent) bool {
		select {
		case events <- event:
			return true
		case <-done:
			return false
		}
	}

	if err := w.Add(rootDir); err != nil {
		log.Errorf("WatchChannelDirs: add %s: %v", rootDir, err)
		// Check again when the ticker fires
	}
	if !scanDir(rootDir, send, log) {
		return
	}

	// Re-add and rescan on a randomized interval to recover from
	// missed events.
	interval := 10 * time.Minute
	ticker := flextimer.NewRangeTicker(interval*3/10, interval)
	defer ticker.StopTicker()

	for {
		select {
		case <-done:
			return
		case event := <-w.Events:
			name := filepath.Base(event.Name)
			if !strings.Contains(name, ".") || strings.HasPrefix(name, ".") {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if !send(ChannelEvent{Op: Create, Dir: event.Name}) {
					return
				}
			} else if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				if !send(ChannelEvent{Op: Remove, Dir: event.Name}) {
					return
				}
			}
		case err := <-w.Errors:
			log.Errorln("WatchChannelDirs error:", err)
		case <-ticker.C:
			if err := w.Remove(rootDir); err != nil {
				log.Errorf("WatchChannelDirs: remove %s: %v", rootDir, err)
			}
			if err := w.Add(rootDir); err != nil {
				log.Errorf("WatchChannelDirs: re-add %s: %v", rootDir, err)
				continue
			}
			if !scanDir(rootDir, send, log) {
				return
			}
		}
	}
}

// scanDir emits Create for every channel directory currently present.
func scanDir(rootDir string, send func(ChannelEvent) bool, log *base.LogObject) bool {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		log.Errorf("WatchChannelDirs: read %s: %v", rootDir, err)
		return true
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.Contains(entry.Name(), ".") ||
			strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !send(ChannelEvent{Op: Create, Dir: filepath.Join(rootDir, entry.Name())}) {
			return false
		}
	}
	return true
}
