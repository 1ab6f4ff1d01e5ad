package throttle

import (
	"errors"
	"testing"
	"time"

	"github.com/juju/ratelimit"
	"github.com/stretchr/testify/assert"
)

const (
	bucketCaptures = 5
	minRefill      = 20 * time.Second
)

func newTestConfig() *ThrottlerConfig {
	return &ThrottlerConfig{
		ApplyThrottling: true,
		BucketCaptures:  bucketCaptures,
		MinRefill:       minRefill,
	}
}

func newTestThrottledStore() (*countingSaver, *throttleListener, *ThrottledStore, *testClock) {
	clock := new(testClock)
	saver := new(countingSaver)
	listener := new(throttleListener)
	return saver, listener, NewThrottledStoreWithClock(saver, newTestConfig(), listener, clock), clock
}

type countingSaver struct {
	saves int
	err   error
}

func (s *countingSaver) Save(buf []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saves++
	return "capture", nil
}

func (s *countingSaver) Reset() {
	s.saves = 0
}

type throttleListener struct {
	events int
}

func (tc *throttleListener) WhenThrottled() {
	tc.events++
}

func saveCaptures(store *ThrottledStore, captures int) {
	for i := 0; i < captures; i++ {
		store.Save(nil)
	}
}

func TestOnlySavesUntilBucketIsEmpty(t *testing.T) {
	saver, listener, store, _ := newTestThrottledStore()

	saveCaptures(store, bucketCaptures+2)
	assert.Equal(t, bucketCaptures, saver.saves)
	assert.Equal(t, 2, listener.events)
}

func TestThrottledSaveReturnsError(t *testing.T) {
	_, _, store, _ := newTestThrottledStore()

	saveCaptures(store, bucketCaptures)
	name, err := store.Save(nil)
	assert.Equal(t, ErrThrottled, err)
	assert.Empty(t, name)
}

func TestWaitingRefillsBucket(t *testing.T) {
	saver, _, store, clock := newTestThrottledStore()

	saveCaptures(store, bucketCaptures) // empty bucket
	clock.Sleep(2 * minRefill)

	saver.Reset()
	saveCaptures(store, bucketCaptures)
	assert.Equal(t, 2, saver.saves)
}

func TestRefillStopsAtBucketSize(t *testing.T) {
	saver, _, store, clock := newTestThrottledStore()

	saveCaptures(store, bucketCaptures)
	clock.Sleep(100 * minRefill)

	saver.Reset()
	saveCaptures(store, 2*bucketCaptures)
	assert.Equal(t, bucketCaptures, saver.saves)
	assert.Equal(t, int64(0), store.Available())
}

func TestSaveErrorsPassThrough(t *testing.T) {
	saver, listener, store, _ := newTestThrottledStore()
	saver.err = errors.New("disk full")

	_, err := store.Save(nil)
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 0, listener.events)
}

func TestNilListener(t *testing.T) {
	store := NewThrottledStoreWithClock(new(countingSaver), newTestConfig(), nil, new(testClock))
	saveCaptures(store, bucketCaptures+1)
}

var _ ratelimit.Clock = new(realClock)
var _ ratelimit.Clock = new(testClock)

// testClock implements a fake ratelimit.Clock for testing.
type testClock struct {
	now time.Time
}

// Now implements Clock.Now by returning the fake time.
func (c *testClock) Now() time.Time {
	return c.now
}

// Sleep implements Clock.Sleep by advancing the fake time.
func (c *testClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
}
