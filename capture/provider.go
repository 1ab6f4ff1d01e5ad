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

// Package capture drives the camera capture protocol for one or both
// cameras of the rig.
package capture

import (
	"fmt"
	"time"

	"github.com/TheCacophonyProject/stereo-recorder/rgb565"
)

// Fixed capture geometry. The cameras are configured once at startup
// and never change size or format.
const (
	Width      = 400
	Height     = 240
	FrameSize  = Width * Height * rgb565.BytesPerSample
	BufferSize = FrameSize * 2

	DefaultTimeout = 300 * time.Millisecond
)

// Port identifies the receive side of one or both cameras.
type Port uint8

const (
	PortNone Port = 0
	PortCam1 Port = 1
	PortCam2 Port = 2
	PortBoth      = PortCam1 | PortCam2
)

func (p Port) String() string {
	switch p {
	case PortNone:
		return "none"
	case PortCam1:
		return "cam1"
	case PortCam2:
		return "cam2"
	case PortBoth:
		return "both"
	}
	return fmt.Sprintf("port(%d)", uint8(p))
}

// Select identifies which camera outputs are powered and streaming.
type Select uint8

const (
	SelectNone Select = 0
	SelectOut1 Select = 1
	SelectOut2 Select = 2
	SelectBoth        = SelectOut1 | SelectOut2
)

func (s Select) String() string {
	switch s {
	case SelectNone:
		return "none"
	case SelectOut1:
		return "out1"
	case SelectOut2:
		return "out2"
	case SelectBoth:
		return "out1+out2"
	}
	return fmt.Sprintf("select(%d)", uint8(s))
}

// Settings are applied to both cameras once when the provider is set up.
type Settings struct {
	Width            int
	Height           int
	NoiseFilter      bool
	AutoExposure     bool
	AutoWhiteBalance bool
	Trimming         bool
}

// DefaultSettings returns the settings used by the recorder.
func DefaultSettings() Settings {
	return Settings{
		Width:            Width,
		Height:           Height,
		NoiseFilter:      true,
		AutoExposure:     true,
		AutoWhiteBalance: true,
		Trimming:         false,
	}
}

// Event is signalled when a posted receive has filled its buffer.
// Close must be called once the event is no longer needed, whether or
// not it was signalled.
type Event interface {
	Done() <-chan struct{}
	// Err reports the outcome of the transfer once Done is closed.
	Err() error
	Close() error
}

// Provider is the camera hardware. Every call returns the status of
// the operation; the capture flows in this package record those
// statuses but never stop because of them.
type Provider interface {
	Setup(Settings) error
	// TransferUnit returns the transfer size the hardware negotiated
	// for a frame of the given size.
	TransferUnit(width, height int) (int, error)
	SetTransferBytes(port Port, unit, width, height int) error
	Activate(Select) error
	ClearBuffer(Port) error
	SynchronizeVsync(a, b Select) error
	StartCapture(Port) error
	// SetReceiving posts a receive of len(buf) bytes from port into
	// buf. The buffer is borrowed until the returned event is done or
	// closed.
	SetReceiving(buf []byte, port Port, unit int) (Event, error)
	StopCapture(Port) error
	Close() error
}
