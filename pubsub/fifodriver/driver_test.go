// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

package fifodriver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/fifobus/fifobus/base"
	"github.com/fifobus/fifobus/pubsub"
)

func newTestDriver(t *testing.T) *FifoDriver {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	log := base.NewSourceLogObject(logger, "fifodriver-test", os.Getpid())
	driver, err := New(logger, log, WithRootDir(t.TempDir()))
	if err != nil {
		t.Fatalf("New failed: %s", err)
	}
	return driver
}

func newTestSubscriber(t *testing.T, driver *FifoDriver, pattern string) *Subscriber {
	t.Helper()
	instance, err := uuid.NewV4()
	if err != nil {
		t.Fatalf("uuid failed: %s", err)
	}
	sub, err := driver.Subscriber(pattern, instance)
	if err != nil {
		t.Fatalf("Subscriber failed: %s", err)
	}
	return sub.(*Subscriber)
}

func TestResolveRoot(t *testing.T) {
	// Explicit env wins.
	assert.Equal(t, "/custom/dir", resolveRoot("/custom/dir", ""))

	// Config file is consulted when the env var is unset.
	configFile := filepath.Join(t.TempDir(), "pubsub.conf")
	if err := os.WriteFile(configFile,
		[]byte("# storage\nPUBSUB_HOME=/from/config\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %s", err)
	}
	assert.Equal(t, "/from/config", resolveRoot("", configFile))
	assert.Equal(t, "/custom/dir", resolveRoot("/custom/dir", configFile))

	// Unreadable or irrelevant config falls through to the defaults.
	fallback := resolveRoot("", filepath.Join(t.TempDir(), "missing.conf"))
	if fi, err := os.Stat(shmDir); err == nil && fi.IsDir() {
		assert.Equal(t, filepath.Join(shmDir, rootDirName), fallback)
	} else {
		assert.Equal(t, filepath.Join(os.TempDir(), rootDirName), fallback)
	}
}

func TestNewCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "pubsub")
	logger := logrus.New()
	log := base.NewSourceLogObject(logger, "fifodriver-test", os.Getpid())
	driver, err := New(logger, log, WithRootDir(root))
	if err != nil {
		t.Fatalf("New failed: %s", err)
	}
	fi, err := os.Stat(driver.Root())
	if err != nil {
		t.Fatalf("Stat failed: %s", err)
	}
	assert.True(t, fi.IsDir())
}

func TestChannelDirs(t *testing.T) {
	driver := newTestDriver(t)

	// Empty root: no channels.
	dirs, err := driver.ChannelDirs()
	assert.NoError(t, err)
	assert.Empty(t, dirs)

	// A live channel directory is listed.
	sub := newTestSubscriber(t, driver, "news.=")
	if err := sub.Open(); err != nil {
		t.Fatalf("Open failed: %s", err)
	}
	defer sub.Close()

	// Noise: plain files and directories without the sanitized-pattern
	// shape are skipped.
	if err := os.WriteFile(filepath.Join(driver.Root(), tmpPrefix+"123"),
		[]byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %s", err)
	}
	if err := os.Mkdir(filepath.Join(driver.Root(), "noise"), 0o755); err != nil {
		t.Fatalf("Mkdir failed: %s", err)
	}

	dirs, err = driver.ChannelDirs()
	assert.NoError(t, err)
	assert.Equal(t, []string{sub.Directory()}, dirs)

	// The directory name starts with the sanitized pattern.
	assert.True(t, strings.HasPrefix(filepath.Base(sub.Directory()),
		pubsub.SanitizePattern("news.=")+"."))

	// A vanished root means no channels, not an error.
	missing, err := New(driver.logger, driver.log,
		WithRootDir(filepath.Join(driver.Root(), "sub")))
	if err != nil {
		t.Fatalf("New failed: %s", err)
	}
	if err := os.RemoveAll(missing.Root()); err != nil {
		t.Fatalf("RemoveAll failed: %s", err)
	}
	dirs, err = missing.ChannelDirs()
	assert.NoError(t, err)
	assert.Empty(t, dirs)
}
