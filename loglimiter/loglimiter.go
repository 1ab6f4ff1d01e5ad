// stereo-recorder - capture stereo images from a dual camera rig
//  Copyright (C) 2020, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package loglimiter suppresses repeated log lines. The capture loop
// logs a status line per protocol step for every preview frame, which
// would otherwise flood the journal.
package loglimiter

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// New returns a new LogLimiter with the configured minimum log interval.
func New(interval time.Duration) *LogLimiter {
	return &LogLimiter{
		interval: interval,
		nowFunc:  time.Now,
		output:   log.Print,
	}
}

// LogLimiter will suppress a log line if the same line was printed
// within the interval. When a suppressed line is printed again the
// number of times it was skipped is appended.
type LogLimiter struct {
	mu         sync.Mutex
	interval   time.Duration
	nowFunc    func() time.Time
	output     func(v ...interface{})
	last       map[string]time.Time
	suppressed map[string]int
}

func (limiter *LogLimiter) Printf(format string, v ...interface{}) {
	limiter.Print(fmt.Sprintf(format, v...))
}

func (limiter *LogLimiter) Print(s string) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if limiter.last == nil {
		limiter.last = make(map[string]time.Time)
		limiter.suppressed = make(map[string]int)
	}

	now := limiter.nowFunc()
	if prev, ok := limiter.last[s]; ok && now.Sub(prev) < limiter.interval {
		limiter.suppressed[s]++
		return
	}

	if n := limiter.suppressed[s]; n > 0 {
		limiter.output(fmt.Sprintf("%s (suppressed %d)", s, n))
	} else {
		limiter.output(s)
	}
	delete(limiter.suppressed, s)
	limiter.last[s] = now
	limiter.expire(now)
}

// expire forgets lines that haven't been seen for a while.
func (limiter *LogLimiter) expire(now time.Time) {
	for s, t := range limiter.last {
		if now.Sub(t) >= 2*limiter.interval && limiter.suppressed[s] == 0 {
			delete(limiter.last, s)
		}
	}
}
