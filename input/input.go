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

// Package input reads the recorder's buttons.
package input

import "sync"

// Buttons is a set of buttons.
type Buttons uint8

const (
	ButtonTrigger Buttons = 1 << iota
	ButtonExit
)

// Has reports whether every button in b2 is in b.
func (b Buttons) Has(b2 Buttons) bool {
	return b2 != 0 && b&b2 == b2
}

// State is the button state seen by one scan. Down holds the buttons
// that went from released to pressed since the previous scan.
type State struct {
	Down Buttons
	Held Buttons
}

// Provider is polled once per loop iteration.
type Provider interface {
	Scan() (State, error)
}

// Edges derives Down from the held buttons of successive scans.
type Edges struct {
	prev Buttons
}

func (e *Edges) Next(held Buttons) State {
	s := State{Down: held &^ e.prev, Held: held}
	e.prev = held
	return s
}

// None is a Provider with no buttons.
type None struct{}

func (None) Scan() (State, error) { return State{}, nil }

// Remote lets buttons be pressed from outside the loop, eg. over D-Bus.
// A remote press is reported as held and down for exactly one scan.
type Remote struct {
	base    Provider
	mu      sync.Mutex
	pending Buttons
}

// NewRemote wraps base. A nil base behaves like None.
func NewRemote(base Provider) *Remote {
	if base == nil {
		base = None{}
	}
	return &Remote{base: base}
}

// Press queues buttons for the next scan.
func (r *Remote) Press(b Buttons) {
	r.mu.Lock()
	r.pending |= b
	r.mu.Unlock()
}

func (r *Remote) Scan() (State, error) {
	s, err := r.base.Scan()
	r.mu.Lock()
	pressed := r.pending
	r.pending = 0
	r.mu.Unlock()
	s.Down |= pressed &^ s.Held
	s.Held |= pressed
	return s, err
}
