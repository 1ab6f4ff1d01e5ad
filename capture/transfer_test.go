package capture

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTransferDeliverSignals(t *testing.T) {
	tr := NewTransfer()
	buf := make([]byte, 2)

	ok := tr.Deliver(func() error {
		buf[0] = 1
		return nil
	})

	assert.True(t, ok)
	assert.NoError(t, Wait(tr, time.Second))
	assert.Equal(t, byte(1), buf[0])
	assert.NoError(t, tr.Close())
}

func TestTransferDeliverError(t *testing.T) {
	tr := NewTransfer()
	tr.Deliver(func() error { return errors.New("short frame") })

	assert.EqualError(t, Wait(tr, time.Second), "short frame")
}

func TestTransferNoDeliveryAfterClose(t *testing.T) {
	tr := NewTransfer()
	assert.Equal(t, ErrTimeout, Wait(tr, time.Millisecond))
	tr.Close()

	called := false
	ok := tr.Deliver(func() error {
		called = true
		return nil
	})

	assert.False(t, ok)
	assert.False(t, called)
	// Close is safe to repeat.
	assert.NoError(t, tr.Close())
}

func TestWaitWithoutEvent(t *testing.T) {
	assert.Equal(t, ErrNoEvent, Wait(nil, time.Millisecond))
}
