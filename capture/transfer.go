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

package capture

import "sync"

// Transfer is an Event for providers that fill receive buffers from
// another goroutine.
type Transfer struct {
	mu       sync.Mutex
	done     chan struct{}
	closed   chan struct{}
	err      error
	signaled bool
	released bool
}

// NewTransfer returns an unsignalled Transfer.
func NewTransfer() *Transfer {
	return &Transfer{
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Deliver runs fill and signals the transfer with its result. It does
// nothing once the transfer has been signalled or closed, so the
// borrowed buffer is never touched after Close returns.
func (t *Transfer) Deliver(fill func() error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released || t.signaled {
		return false
	}
	t.err = fill()
	t.signaled = true
	close(t.done)
	return true
}

// Closed is closed when the consumer has released the transfer.
func (t *Transfer) Closed() <-chan struct{} {
	return t.closed
}

func (t *Transfer) Done() <-chan struct{} {
	return t.done
}

func (t *Transfer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Transfer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.released {
		t.released = true
		close(t.closed)
	}
	return nil
}
