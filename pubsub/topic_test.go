// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

package pubsub

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePublishTopic(t *testing.T) {
	testMatrix := map[string]struct {
		topic string
		valid bool
	}{
		"single term":          {topic: "news", valid: true},
		"dotted terms":         {topic: "news.sports.2025", valid: true},
		"dashes and digits":    {topic: "logs.app-1.error", valid: true},
		"empty":                {topic: "", valid: false},
		"leading dot":          {topic: ".news", valid: false},
		"trailing dot":         {topic: "news.", valid: false},
		"adjacent dots":        {topic: "news..sports", valid: false},
		"single wildcard":      {topic: "news.=", valid: false},
		"multi wildcard":       {topic: "logs.+", valid: false},
		"embedded wildcard":    {topic: "a.=.b", valid: false},
		"whitespace":           {topic: "news sports", valid: false},
		"underscore":           {topic: "news_sports", valid: false},
		"wildcard inside term": {topic: "ne=ws", valid: false},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		err := ValidatePublishTopic(test.topic)
		if test.valid {
			assert.NoError(t, err)
		} else {
			assert.True(t, errors.Is(err, ErrInvalidTopic), "expected ErrInvalidTopic, got %v", err)
		}
	}
}

func TestValidateSubscribeTopic(t *testing.T) {
	testMatrix := map[string]struct {
		pattern string
		valid   bool
	}{
		"concrete":              {pattern: "news.sports", valid: true},
		"single wildcard":       {pattern: "news.=", valid: true},
		"multi wildcard":        {pattern: "logs.+", valid: true},
		"wildcard only":         {pattern: "+", valid: true},
		"wildcards mixed":       {pattern: "a.=.+", valid: true},
		"empty":                 {pattern: "", valid: false},
		"wildcard inside term":  {pattern: "ne=ws", valid: false},
		"double wildcard term":  {pattern: "news.==", valid: false},
		"trailing dot":          {pattern: "news.=.", valid: false},
		"adjacent dots":         {pattern: "a..b", valid: false},
		"star is not a grammar": {pattern: "news.*", valid: false},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		err := ValidateSubscribeTopic(test.pattern)
		if test.valid {
			assert.NoError(t, err)
		} else {
			assert.True(t, errors.Is(err, ErrInvalidTopic), "expected ErrInvalidTopic, got %v", err)
		}
	}
}

func TestTopicMatcher(t *testing.T) {
	testMatrix := map[string]struct {
		pattern string
		topic   string
		match   bool
	}{
		"exact match":              {pattern: "news.sports", topic: "news.sports", match: true},
		"exact mismatch":           {pattern: "news.sports", topic: "news.tech", match: false},
		"case sensitive":           {pattern: "news.sports", topic: "News.sports", match: false},
		"single matches one":       {pattern: "news.=", topic: "news.sports", match: true},
		"single needs a term":      {pattern: "news.=", topic: "news", match: false},
		"single not two":           {pattern: "news.=", topic: "news.tech.2025", match: false},
		"multi matches one":        {pattern: "logs.+", topic: "logs.error", match: true},
		"multi matches several":    {pattern: "logs.+", topic: "logs.a.b.c", match: true},
		"multi needs a term":       {pattern: "logs.+", topic: "logs", match: false},
		"multi in the middle":      {pattern: "a.+.z", topic: "a.b.c.z", match: true},
		"middle multi needs terms": {pattern: "a.+.z", topic: "a.z", match: false},
		"prefix does not match":    {pattern: "news", topic: "news.sports", match: false},
		"dash is literal":          {pattern: "app-1.=", topic: "app-1.up", match: true},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		matcher, err := CompileTopic(test.pattern)
		if err != nil {
			t.Fatalf("CompileTopic(%s) failed: %s", test.pattern, err)
		}
		assert.Equal(t, test.match, matcher.Match(test.topic),
			"pattern %q vs topic %q", test.pattern, test.topic)
	}
}

func TestSanitizePattern(t *testing.T) {
	assert.Equal(t, "news.%3d", SanitizePattern("news.="))
	assert.Equal(t, "logs.%2b", SanitizePattern("logs.+"))
	assert.Equal(t, "news.sports", SanitizePattern("news.sports"))
	// Deterministic: same input, same output.
	assert.Equal(t, SanitizePattern("a.=.+"), SanitizePattern("a.=.+"))
}
