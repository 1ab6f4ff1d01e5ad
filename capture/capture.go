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

import (
	"log"
	"time"

	"github.com/TheCacophonyProject/stereo-recorder/rgb565"
)

// Logger receives one status line per protocol step.
type Logger interface {
	Printf(format string, v ...interface{})
}

type stdLogger struct{}

func (stdLogger) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

// Request describes one capture attempt.
type Request struct {
	Width   int
	Height  int
	Port    Port
	Timeout time.Duration
}

// NewRequest returns a request for a full size frame from port.
func NewRequest(port Port, timeout time.Duration) Request {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return Request{
		Width:   Width,
		Height:  Height,
		Port:    port,
		Timeout: timeout,
	}
}

// FrameSize is the number of bytes received per camera.
func (req Request) FrameSize() int {
	return req.Width * req.Height * rgb565.BytesPerSample
}

// Capturer runs the capture protocol against a Provider.
type Capturer struct {
	provider Provider
	log      Logger
}

// New returns a Capturer. Status lines go to logger, or to the
// standard logger if it is nil.
func New(provider Provider, logger Logger) *Capturer {
	if logger == nil {
		logger = stdLogger{}
	}
	return &Capturer{
		provider: provider,
		log:      logger,
	}
}

func (c *Capturer) record(res *Result, stage Stage, port Port, err error) error {
	s := res.add(stage, port, err)
	c.log.Printf("%s", s)
	return err
}

// Wait blocks until ev is signalled or timeout passes.
func Wait(ev Event, timeout time.Duration) error {
	if ev == nil {
		return ErrNoEvent
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ev.Done():
		return ev.Err()
	case <-timer.C:
		return ErrTimeout
	}
}

func (c *Capturer) release(res *Result, port Port, ev Event) {
	if ev == nil {
		return
	}
	c.record(res, StageRelease, port, ev.Close())
}

// Single receives one frame from req.Port into the start of buf.
func (c *Capturer) Single(buf []byte, req Request) *Result {
	res := new(Result)
	size := req.FrameSize()
	if len(buf) < size {
		c.record(res, StageBuffer, req.Port, ErrShortBuffer)
		return res
	}
	p := c.provider

	unit, err := p.TransferUnit(req.Width, req.Height)
	c.record(res, StageTransferUnit, req.Port, err)
	c.record(res, StageTransfer, req.Port, p.SetTransferBytes(req.Port, unit, req.Width, req.Height))
	c.record(res, StageActivate, req.Port, p.Activate(SelectBoth))
	c.record(res, StageClear, req.Port, p.ClearBuffer(req.Port))
	c.record(res, StageStart, req.Port, p.StartCapture(req.Port))

	ev, err := p.SetReceiving(buf[:size:size], req.Port, unit)
	c.record(res, StageReceive, req.Port, err)
	c.record(res, StageWait, req.Port, Wait(ev, req.Timeout))
	c.record(res, StageStop, req.Port, p.StopCapture(req.Port))
	c.release(res, req.Port, ev)
	return res
}

// Dual receives a frame from each camera. The first camera's frame
// fills the first half of buf and the second camera's the second half.
// Both receives are posted before waiting on either so the transfers
// overlap.
func (c *Capturer) Dual(buf []byte, req Request) *Result {
	res := new(Result)
	size := req.FrameSize()
	if len(buf) < 2*size {
		c.record(res, StageBuffer, PortBoth, ErrShortBuffer)
		return res
	}
	left := buf[0:size:size]
	right := buf[size : 2*size : 2*size]
	p := c.provider

	unit, err := p.TransferUnit(req.Width, req.Height)
	c.record(res, StageTransferUnit, PortBoth, err)
	c.record(res, StageTransfer, PortBoth, p.SetTransferBytes(PortBoth, unit, req.Width, req.Height))
	c.record(res, StageActivate, PortBoth, p.Activate(SelectBoth))
	c.record(res, StageClear, PortBoth, p.ClearBuffer(PortBoth))
	c.record(res, StageSyncVsync, PortBoth, p.SynchronizeVsync(SelectOut1, SelectOut2))
	c.record(res, StageStart, PortBoth, p.StartCapture(PortBoth))

	ev1, err := p.SetReceiving(left, PortCam1, unit)
	c.record(res, StageReceive, PortCam1, err)
	ev2, err := p.SetReceiving(right, PortCam2, unit)
	c.record(res, StageReceive, PortCam2, err)

	c.record(res, StageWait, PortCam1, Wait(ev1, req.Timeout))
	c.record(res, StageWait, PortCam2, Wait(ev2, req.Timeout))

	c.record(res, StageStop, PortBoth, p.StopCapture(PortBoth))
	c.release(res, PortCam1, ev1)
	c.release(res, PortCam2, ev2)
	c.record(res, StageDeactivate, PortBoth, p.Activate(SelectNone))
	return res
}
