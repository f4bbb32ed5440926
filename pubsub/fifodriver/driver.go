// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

package fifodriver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-envparse"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/fifobus/fifobus/base"
	"github.com/fifobus/fifobus/pubsub"
)

// Driver for pubsub using a shared directory on a fast filesystem,
// typically a RAM-backed tmpfs. Each live channel is one subdirectory
// holding a FIFO named "queue", a "pattern" sidecar with the raw
// subscriber topic, a "pid" sidecar with the owning process id, and the
// pending payload files named by message id. Publishers hard-link
// payloads in and append id tokens to the FIFO; the owning subscriber
// is the only reader.
const (
	// RootEnvVar overrides the storage root; read once on first use.
	RootEnvVar = "PUBSUB_HOME"
	// ConfigEnvVar names an optional env-format config file consulted
	// when RootEnvVar is unset.
	ConfigEnvVar = "PUBSUB_CONFIG"

	shmDir      = "/dev/shm"
	rootDirName = "pubsub"

	queueFileName   = "queue"
	patternFileName = "pattern"
	pidFileName     = "pid"
	tmpPrefix       = ".tmp."

	dirPerm   = 0o755
	queuePerm = 0o644
)

// The storage root is resolved exactly once per process; changes to the
// environment after first use have no effect.
var (
	resolveOnce  sync.Once
	resolvedRoot string
)

func defaultRoot() string {
	resolveOnce.Do(func() {
		resolvedRoot = resolveRoot(os.Getenv(RootEnvVar), os.Getenv(ConfigEnvVar))
	})
	return resolvedRoot
}

func resolveRoot(envDir, configFile string) string {
	if envDir != "" {
		return envDir
	}
	if configFile != "" {
		if dir := rootFromConfig(configFile); dir != "" {
			return dir
		}
	}
	if fi, err := os.Stat(shmDir); err == nil && fi.IsDir() {
		return filepath.Join(shmDir, rootDirName)
	}
	return filepath.Join(os.TempDir(), rootDirName)
}

// rootFromConfig reads an env-format file and returns its PUBSUB_HOME
// entry, or "" when the file is unreadable or has no such entry.
func rootFromConfig(configFile string) string {
	f, err := os.Open(configFile)
	if err != nil {
		return ""
	}
	defer f.Close()
	env, err := envparse.Parse(f)
	if err != nil {
		return ""
	}
	return env[RootEnvVar]
}

// FifoDriver implements pubsub.Driver on a shared directory.
type FifoDriver struct {
	logger  *logrus.Logger
	log     *base.LogObject
	rootDir string
}

// Option adjusts a FifoDriver under construction.
type Option func(*FifoDriver)

// WithRootDir pins the storage root to dir, bypassing the process-wide
// resolver. Intended for tests and for embedding several isolated
// buses in one process.
func WithRootDir(dir string) Option {
	return func(d *FifoDriver) {
		d.rootDir = dir
	}
}

// New creates a FifoDriver and ensures the storage root exists.
func New(logger *logrus.Logger, log *base.LogObject, opts ...Option) (*FifoDriver, error) {
	d := &FifoDriver{
		logger: logger,
		log:    log,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.rootDir == "" {
		d.rootDir = defaultRoot()
	}
	if err := os.MkdirAll(d.rootDir, dirPerm); err != nil {
		return nil, fmt.Errorf("New(%s): %w", d.rootDir, err)
	}
	d.log.Functionf("FifoDriver root %s", d.rootDir)
	return d, nil
}

// Root returns the resolved storage root.
func (d *FifoDriver) Root() string {
	return d.rootDir
}

// ChannelDirs lists the live channel directories under the root. A
// missing root means no channels. Entries that are not directories, or
// whose name lacks the sanitized-pattern"."suffix shape, are skipped.
func (d *FifoDriver) ChannelDirs() ([]string, error) {
	entries, err := os.ReadDir(d.rootDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ChannelDirs(%s): %w", d.rootDir, err)
	}
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.Contains(entry.Name(), ".") {
			continue
		}
		dirs = append(dirs, filepath.Join(d.rootDir, entry.Name()))
	}
	return dirs, nil
}

// Publisher returns the fan-out engine for this root.
func (d *FifoDriver) Publisher() (pubsub.DriverPublisher, error) {
	return &Publisher{
		driver:   d,
		log:      d.log,
		matchers: make(map[string]matcherEntry),
		doneChan: make(chan struct{}),
	}, nil
}

// Subscriber returns the endpoint mechanics for one channel instance.
// Nothing is created on disk until Open.
func (d *FifoDriver) Subscriber(pattern string, instance uuid.UUID) (pubsub.DriverSubscriber, error) {
	dirName := filepath.Join(d.rootDir,
		pubsub.SanitizePattern(pattern)+"."+instance.String())
	return &Subscriber{
		pattern:   pattern,
		dirName:   dirName,
		queuePath: filepath.Join(dirName, queueFileName),
		fd:        -1,
		log:       d.log,
	}, nil
}
