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

package throttle

import (
	"errors"
	"log"
	"time"

	"github.com/juju/ratelimit"

	"github.com/TheCacophonyProject/stereo-recorder/storage"
)

var ErrThrottled = errors.New("capture throttled")

func NewThrottledStore(
	saver storage.Saver,
	config *ThrottlerConfig,
	listener ThrottledEventListener,
) *ThrottledStore {
	return NewThrottledStoreWithClock(saver, config, listener, new(realClock))
}

func NewThrottledStoreWithClock(
	saver storage.Saver,
	config *ThrottlerConfig,
	listener ThrottledEventListener,
	clock ratelimit.Clock,
) *ThrottledStore {
	// The token bucket tracks the number of *captures* available. The
	// config must have a positive bucket size and refill time.
	refillRate := 1 / config.MinRefill.Seconds()
	bucket := ratelimit.NewBucketWithRateAndClock(refillRate, config.BucketCaptures, clock)

	if listener == nil {
		listener = new(nullListener)
	}

	return &ThrottledStore{
		saver:    saver,
		listener: listener,
		bucket:   bucket,
	}
}

// ThrottledStore wraps a Saver so that captures stop being saved (ie
// get throttled) if the trigger is pressed too often, for instance when
// it is stuck down or the remote trigger is abused.
type ThrottledStore struct {
	saver     storage.Saver
	listener  ThrottledEventListener
	bucket    *ratelimit.Bucket
	throttled int
}

type ThrottledEventListener interface {
	WhenThrottled()
}

type nullListener struct{}

func (lis *nullListener) WhenThrottled() {}

func (throttler *ThrottledStore) Save(buf []byte) (string, error) {
	if throttler.bucket.TakeAvailable(1) == 0 {
		throttler.throttled++
		log.Printf("capture throttled (%d so far)", throttler.throttled)
		throttler.listener.WhenThrottled()
		return "", ErrThrottled
	}
	return throttler.saver.Save(buf)
}

// Available returns the number of captures that can be saved now.
func (throttler *ThrottledStore) Available() int64 {
	return throttler.bucket.Available()
}

// realClock implements ratelimit.Clock in terms of standard time functions.
type realClock struct{}

// Now implements Clock.Now by calling time.Now.
func (realClock) Now() time.Time {
	return time.Now()
}

// Now implements Clock.Sleep by calling time.Sleep.
func (realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
