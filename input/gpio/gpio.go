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

// Package gpio reads buttons wired between GPIO pins and ground.
package gpio

import (
	"fmt"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"

	"github.com/TheCacophonyProject/stereo-recorder/input"
)

type button struct {
	id  input.Buttons
	pin gpio.PinIn
}

// Buttons is an input.Provider backed by GPIO pins. A button reads low
// while pressed.
type Buttons struct {
	buttons []button
	edges   input.Edges
}

// Open looks up the trigger and exit pins by name. host.Init must have
// been called first.
func Open(trigger, exit string) (*Buttons, error) {
	t := gpioreg.ByName(trigger)
	if t == nil {
		return nil, fmt.Errorf("failed to find trigger pin %q", trigger)
	}
	e := gpioreg.ByName(exit)
	if e == nil {
		return nil, fmt.Errorf("failed to find exit pin %q", exit)
	}
	return New(t, e)
}

// New configures the pins as pulled up inputs.
func New(trigger, exit gpio.PinIn) (*Buttons, error) {
	b := &Buttons{
		buttons: []button{
			{id: input.ButtonTrigger, pin: trigger},
			{id: input.ButtonExit, pin: exit},
		},
	}
	for _, btn := range b.buttons {
		if err := btn.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("failed to set %s as input: %v", btn.pin, err)
		}
	}
	return b, nil
}

func (b *Buttons) Scan() (input.State, error) {
	var held input.Buttons
	for _, btn := range b.buttons {
		if btn.pin.Read() == gpio.Low {
			held |= btn.id
		}
	}
	return b.edges.Next(held), nil
}
