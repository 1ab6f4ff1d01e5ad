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

// Package camera implements the capture protocol on top of a pair of
// V4L2 video devices.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"github.com/TheCacophonyProject/stereo-recorder/capture"
	"github.com/TheCacophonyProject/stereo-recorder/rgb565"
)

const (
	// V4L2_PIX_FMT_RGB565 ("RGBP")
	pixelFmtRGB565 = 'R' | 'G'<<8 | 'B'<<16 | 'P'<<24

	framesPerSecond = 15

	exposureAperturePriority = 3

	stopTimeout = 2 * time.Second
)

var (
	errNotOpen       = errors.New("camera not set up")
	errTrimming      = errors.New("trimming is not supported")
	errSinglePort    = errors.New("receive needs a single port")
	errShortTransfer = errors.New("transfer unit smaller than frame")
	errStreamClosed  = errors.New("camera stream closed")
)

// videoDevice is the part of a go4vl device the rig uses.
type videoDevice interface {
	Start(ctx context.Context) error
	Close() error
	GetOutput() <-chan []byte
	GetPixFormat() (v4l2.PixFormat, error)
	SetControlValue(id v4l2.CtrlID, val v4l2.CtrlValue) error
}

type openFunc func(path string, pix v4l2.PixFormat, fps uint32) (videoDevice, error)

func openDevice(path string, pix v4l2.PixFormat, fps uint32) (videoDevice, error) {
	dev, err := device.Open(path, device.WithPixFormat(pix), device.WithFPS(fps))
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// stream is one camera. Once started it streams until the rig is
// closed; go4vl closes a device's output channel when its stream loop
// ends, so a device can't be restarted. Frames are pumped off the
// device as they arrive and only the newest one is kept, so the driver
// never holds stale frames while the camera isn't being read.
type stream struct {
	path    string
	dev     videoDevice
	running bool
	active  bool
	cancel  context.CancelFunc
	pumped  chan struct{}

	mu     sync.Mutex
	seq    uint64
	latest []byte
	mark   uint64
	fresh  chan struct{}
	ended  bool
}

func (s *stream) start() error {
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.dev.Start(ctx); err != nil {
		cancel()
		return err
	}
	s.mu.Lock()
	s.seq, s.mark, s.latest, s.ended = 0, 0, nil, false
	s.fresh = make(chan struct{})
	s.mu.Unlock()

	s.cancel = cancel
	s.pumped = make(chan struct{})
	s.running = true
	go s.pump(s.dev.GetOutput(), s.pumped)
	return nil
}

func (s *stream) pump(out <-chan []byte, pumped chan struct{}) {
	defer close(pumped)
	for frame := range out {
		// go4vl sends an empty frame for buffers flagged with an error.
		if len(frame) == 0 {
			continue
		}
		s.mu.Lock()
		s.seq++
		s.latest = frame
		close(s.fresh)
		s.fresh = make(chan struct{})
		s.mu.Unlock()
	}
	s.mu.Lock()
	s.ended = true
	close(s.fresh)
	s.mu.Unlock()
}

// stop ends the stream loop and waits for the pump to drain it.
func (s *stream) stop() {
	if !s.running {
		return
	}
	s.cancel()
	select {
	case <-s.pumped:
	case <-time.After(stopTimeout):
		log.Printf("%s: timed out waiting for stream to stop", s.path)
	}
	s.running = false
	s.active = false
}

// clear marks every frame received so far as stale.
func (s *stream) clear() {
	s.mu.Lock()
	s.mark = s.seq
	s.mu.Unlock()
}

func (s *stream) cleared() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mark
}

// next waits for a frame newer than mark and copies it into buf.
func (s *stream) next(tr *capture.Transfer, buf []byte, mark uint64) {
	for {
		s.mu.Lock()
		seq, frame, ended, fresh := s.seq, s.latest, s.ended, s.fresh
		s.mu.Unlock()

		switch {
		case seq > mark:
			tr.Deliver(func() error {
				if len(frame) < len(buf) {
					return fmt.Errorf("short frame: %d of %d bytes", len(frame), len(buf))
				}
				copy(buf, frame)
				return nil
			})
			return
		case ended:
			tr.Deliver(func() error { return errStreamClosed })
			return
		}

		select {
		case <-fresh:
		case <-tr.Closed():
			return
		}
	}
}

// Rig is a pair of V4L2 cameras. Cam1 is the left camera and is also
// the one used for preview.
type Rig struct {
	mu       sync.Mutex
	streams  [2]*stream
	settings capture.Settings
	started  capture.Port
	open     openFunc
}

// New returns a rig for the two device paths. Nothing is opened until
// Setup is called.
func New(left, right string) *Rig {
	return &Rig{
		streams: [2]*stream{{path: left}, {path: right}},
		open:    openDevice,
	}
}

func (r *Rig) streamFor(port capture.Port) (*stream, error) {
	switch port {
	case capture.PortCam1:
		return r.streams[0], nil
	case capture.PortCam2:
		return r.streams[1], nil
	}
	return nil, errSinglePort
}

func (r *Rig) each(port capture.Port, fn func(*stream) error) error {
	var firstErr error
	for i, s := range r.streams {
		if port&(capture.PortCam1<<uint(i)) == 0 {
			continue
		}
		if err := fn(s); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %v", s.path, err)
		}
	}
	return firstErr
}

// Setup opens both devices in RGB565 at the configured size and applies
// the exposure and white balance settings.
func (r *Rig) Setup(settings capture.Settings) error {
	if settings.Trimming {
		return errTrimming
	}
	if settings.NoiseFilter {
		// V4L2 has no generic noise reduction control.
		log.Print("noise filter is left to the camera driver")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = settings
	r.started = capture.PortNone

	return r.each(capture.PortBoth, func(s *stream) error {
		if s.dev != nil {
			s.stop()
			s.dev.Close()
			s.dev = nil
		}
		dev, err := r.open(s.path, v4l2.PixFormat{
			PixelFormat: pixelFmtRGB565,
			Width:       uint32(settings.Width),
			Height:      uint32(settings.Height),
			Field:       v4l2.FieldNone,
		}, framesPerSecond)
		if err != nil {
			return err
		}
		s.dev = dev

		awb := 0
		if settings.AutoWhiteBalance {
			awb = 1
		}
		if err := dev.SetControlValue(v4l2.CtrlAutoWhiteBalance, v4l2.CtrlValue(awb)); err != nil {
			return fmt.Errorf("auto white balance: %v", err)
		}
		if settings.AutoExposure {
			if err := dev.SetControlValue(v4l2.CtrlCameraExposureAuto, exposureAperturePriority); err != nil {
				return fmt.Errorf("auto exposure: %v", err)
			}
		}
		return nil
	})
}

// TransferUnit returns the image size negotiated by the first camera.
func (r *Rig) TransferUnit(width, height int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev := r.streams[0].dev
	if dev == nil {
		return 0, errNotOpen
	}
	pix, err := dev.GetPixFormat()
	if err != nil {
		return 0, err
	}
	if pix.SizeImage > 0 {
		return int(pix.SizeImage), nil
	}
	return int(pix.BytesPerLine) * height, nil
}

func (r *Rig) SetTransferBytes(port capture.Port, unit, width, height int) error {
	if unit < width*height*rgb565.BytesPerSample {
		return errShortTransfer
	}
	return nil
}

// Activate selects which cameras may be received from. A camera starts
// streaming the first time it is selected and keeps streaming while
// deselected.
func (r *Rig) Activate(sel capture.Select) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for i, s := range r.streams {
		want := sel&(capture.SelectOut1<<uint(i)) != 0
		if err := r.activate(s, want); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %v", s.path, err)
		}
	}
	return firstErr
}

func (r *Rig) activate(s *stream, want bool) error {
	if s.dev == nil {
		return errNotOpen
	}
	if want && !s.running {
		if err := s.start(); err != nil {
			return err
		}
	}
	s.active = want
	return nil
}

// ClearBuffer drops frames already received so the next receive gets a
// frame that arrives after this call.
func (r *Rig) ClearBuffer(port capture.Port) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.each(port, func(s *stream) error {
		if s.running {
			s.clear()
		}
		return nil
	})
}

// SynchronizeVsync is a no-op: V4L2 has no frame timing link between
// separate devices, so pairing relies on both buffers being cleared and
// both receives being posted together.
func (r *Rig) SynchronizeVsync(a, b capture.Select) error {
	return nil
}

func (r *Rig) StartCapture(port capture.Port) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.each(port, func(s *stream) error {
		if !s.active {
			return errors.New("camera not active")
		}
		return nil
	})
	r.started |= port
	return err
}

func (r *Rig) StopCapture(port capture.Port) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started &^= port
	return nil
}

// SetReceiving copies the next fresh frame from the camera into buf.
func (r *Rig) SetReceiving(buf []byte, port capture.Port, unit int) (capture.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.streamFor(port)
	if err != nil {
		return nil, err
	}
	if !s.active || r.started&port == 0 {
		return nil, errors.New("camera not capturing")
	}

	tr := capture.NewTransfer()
	go s.next(tr, buf, s.cleared())
	return tr, nil
}

// Close stops streaming and closes both devices.
func (r *Rig) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = capture.PortNone
	return r.each(capture.PortBoth, func(s *stream) error {
		if s.dev == nil {
			return nil
		}
		s.stop()
		err := s.dev.Close()
		s.dev = nil
		return err
	})
}
