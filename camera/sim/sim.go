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

// Package sim provides a camera rig that generates test frames, for
// running the recorder without camera hardware.
package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/TheCacophonyProject/stereo-recorder/capture"
	"github.com/TheCacophonyProject/stereo-recorder/rgb565"
)

var errClosed = errors.New("camera closed")

// Rig is a simulated pair of cameras. Frames show a bright box moving
// across a flat background; the second camera sees the box a few
// pixels to the left of the first.
type Rig struct {
	// Latency is how long a posted receive takes to fill its buffer.
	Latency       time.Duration
	BackgroundVal uint16
	BrightSpotVal uint16
	Parallax      int

	mu       sync.Mutex
	settings capture.Settings
	active   capture.Select
	started  capture.Port
	position int
	frames   uint16
	closed   bool
}

// New returns a simulated rig.
func New() *Rig {
	return &Rig{
		Latency:       30 * time.Millisecond,
		BackgroundVal: rgb565.Pack(40, 60, 90),
		BrightSpotVal: rgb565.Pack(250, 250, 250),
		Parallax:      8,
		settings:      capture.DefaultSettings(),
	}
}

func (r *Rig) Setup(s capture.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Width <= 0 || s.Height <= 0 {
		return errors.New("invalid frame size")
	}
	r.settings = s
	return nil
}

func (r *Rig) TransferUnit(width, height int) (int, error) {
	return width * rgb565.BytesPerSample, nil
}

func (r *Rig) SetTransferBytes(port capture.Port, unit, width, height int) error {
	if unit <= 0 {
		return errors.New("invalid transfer unit")
	}
	return nil
}

func (r *Rig) Activate(s capture.Select) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = s
	return nil
}

func (r *Rig) ClearBuffer(capture.Port) error {
	return nil
}

func (r *Rig) SynchronizeVsync(a, b capture.Select) error {
	return nil
}

func (r *Rig) StartCapture(port capture.Port) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errClosed
	}
	r.started |= port
	return nil
}

func (r *Rig) StopCapture(port capture.Port) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started &^= port
	return nil
}

func (r *Rig) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.active = capture.SelectNone
	r.started = capture.PortNone
	return nil
}

func outputFor(port capture.Port) capture.Select {
	if port == capture.PortCam2 {
		return capture.SelectOut2
	}
	return capture.SelectOut1
}

// SetReceiving fills buf with the next frame after Latency. A receive
// from a camera that isn't active and started never completes.
func (r *Rig) SetReceiving(buf []byte, port capture.Port, unit int) (capture.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errClosed
	}
	if port != capture.PortCam1 && port != capture.PortCam2 {
		return nil, errors.New("receive needs a single port")
	}
	ev := capture.NewTransfer()
	if r.active&outputFor(port) == 0 || r.started&port == 0 {
		return ev, nil
	}

	offset := 0
	if port == capture.PortCam2 {
		offset = -r.Parallax
	} else {
		r.position = (r.position + 3) % r.settings.Width
		r.frames++
	}
	frame := r.makeFrame(r.position+offset, len(buf))

	latency := r.Latency
	go func() {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-timer.C:
			ev.Deliver(func() error {
				copy(buf, frame)
				return nil
			})
		case <-ev.Closed():
		}
	}()
	return ev, nil
}

func (r *Rig) makeFrame(position, size int) []byte {
	width, height := r.settings.Width, r.settings.Height
	frame := make([]byte, size)
	samples := size / rgb565.BytesPerSample
	for i := 0; i < samples; i++ {
		rgb565.PutSample(frame, i, r.BackgroundVal)
	}

	const box = 24
	top := height/2 - box/2
	for y := top; y < top+box && y < height; y++ {
		for x := position; x < position+box; x++ {
			if x < 0 || x >= width {
				continue
			}
			if i := y*width + x; i < samples {
				rgb565.PutSample(frame, i, r.BrightSpotVal)
			}
		}
	}

	if samples > 0 {
		rgb565.PutSample(frame, 0, r.frames)
	}
	return frame
}
