// Copyright (c) 2025 Fifobus Authors.
// SPDX-License-Identifier: Apache-2.0

// Provide randomized timers - both based on a range and on binary
// exponential backoff.
// Usage:
//  ticker := NewRangeTicker(min, max)
//  select ticker.C
//  ticker.UpdateRangeTicker(newmin, newmax)
//  ticker.StopTicker()
// Usage:
//  ticker := NewExpTicker(start, max, randomFactor)
//  select ticker.C
//  ticker.StopTicker()

package flextimer

import (
	"math/rand"
	"time"
)

// FlexTickerHandle is the handle for the caller.
type FlexTickerHandle struct {
	C          <-chan time.Time
	configChan chan<- flexTickerConfig
}

// Arguments fed over configChan. All zeros means stop and close C.
type flexTickerConfig struct {
	exponential  bool
	minTime      time.Duration
	maxTime      time.Duration
	randomFactor float64
}

// NewRangeTicker returns a ticker firing at a random point in
// [minTime, maxTime] each round.
func NewRangeTicker(minTime time.Duration, maxTime time.Duration) FlexTickerHandle {
	configChan := make(chan flexTickerConfig, 1)
	tickChan := newFlexTicker(configChan)
	configChan <- flexTickerConfig{minTime: minTime, maxTime: maxTime}
	return FlexTickerHandle{C: tickChan, configChan: configChan}
}

// NewExpTicker starts at minTime and doubles each round while the base
// interval is below maxTime, then stays at the first base interval that
// reaches it. Each interval is drawn from [base*randomFactor,
// base/randomFactor); a factor above 1 is inverted and 0 disables
// randomization.
func NewExpTicker(minTime time.Duration, maxTime time.Duration, randomFactor float64) FlexTickerHandle {
	configChan := make(chan flexTickerConfig, 1)
	tickChan := newFlexTicker(configChan)
	configChan <- flexTickerConfig{minTime: minTime, maxTime: maxTime,
		exponential: true, randomFactor: randomFactor}
	return FlexTickerHandle{C: tickChan, configChan: configChan}
}

// UpdateRangeTicker replaces the current range without waiting for the
// pending timer to fire.
func (f FlexTickerHandle) UpdateRangeTicker(minTime time.Duration, maxTime time.Duration) {
	f.configChan <- flexTickerConfig{minTime: minTime, maxTime: maxTime}
}

// StopTicker terminates the ticker goroutine and closes C.
func (f FlexTickerHandle) StopTicker() {
	f.configChan <- flexTickerConfig{}
}

func newFlexTicker(config <-chan flexTickerConfig) chan time.Time {
	tick := make(chan time.Time, 1)
	go flexTicker(config, tick)
	return tick
}

func flexTicker(config <-chan flexTickerConfig, tick chan<- time.Time) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	c := <-config
	expFactor := 1
	for {
		var d time.Duration
		if c.exponential {
			rf := c.randomFactor
			if rf == 0 {
				rf = 1.0
			} else if rf > 1.0 {
				rf = 1.0 / rf
			}
			min := float64(c.minTime) * float64(expFactor) * rf
			max := float64(c.minTime) * float64(expFactor) / rf
			base := float64(c.minTime) * float64(expFactor)
			if time.Duration(base) < c.maxTime {
				expFactor *= 2
			}
			if max == min {
				d = time.Duration(min)
			} else {
				d = time.Duration(r.Int63n(int64(max-min)) + int64(min))
			}
		} else if c.maxTime == c.minTime {
			d = c.minTime
		} else {
			d = time.Duration(r.Int63n(int64(c.maxTime-c.minTime)) + int64(c.minTime))
		}
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
			// Non-blocking send; a tick nobody consumed yet makes
			// additional ticks redundant.
			select {
			case tick <- time.Now():
			default:
			}
		case c = <-config:
			timer.Stop()
			expFactor = 1
			if c.maxTime == 0 && c.minTime == 0 {
				close(tick)
				return
			}
		}
	}
}
