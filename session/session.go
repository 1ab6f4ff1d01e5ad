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

// Package session runs the preview and capture loop.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/TheCacophonyProject/stereo-recorder/capture"
	"github.com/TheCacophonyProject/stereo-recorder/display"
	"github.com/TheCacophonyProject/stereo-recorder/input"
	"github.com/TheCacophonyProject/stereo-recorder/rgb565"
	"github.com/TheCacophonyProject/stereo-recorder/storage"
)

const hangPollInterval = 50 * time.Millisecond

var ErrBufferSize = errors.New("frame buffer too small for a stereo capture")

// Capturer runs single and dual captures. It is implemented by
// *capture.Capturer.
type Capturer interface {
	Single(buf []byte, req capture.Request) *capture.Result
	Dual(buf []byte, req capture.Request) *capture.Result
}

// Reporter is told about every saved capture.
type Reporter interface {
	CaptureSaved(name string, complete bool)
}

type Config struct {
	// Timeout bounds each wait for a frame.
	Timeout time.Duration
	// DiscardIncomplete drops stereo captures where a camera timed out
	// instead of saving them.
	DiscardIncomplete bool
	// BufferSize is the size of the frame buffer. Zero means
	// capture.BufferSize.
	BufferSize int
	Reporter   Reporter
	// Heartbeat is called once per loop iteration.
	Heartbeat func()
}

// Stats counts what the session has done so far.
type Stats struct {
	Previews    int
	Captures    int
	Saved       int
	FailedSaves int
	Timeouts    int
	LastSaved   string
}

// Session owns the frame buffer and alternates between previewing the
// first camera and, on a trigger press, capturing from both.
type Session struct {
	capturer Capturer
	surface  display.Surface
	input    input.Provider
	saver    storage.Saver
	conf     Config

	buf         []byte
	triggerHeld bool
	shutdown    bool
	closeOnce   sync.Once
	snapshots   chan chan []byte

	mu    sync.Mutex
	stats Stats
}

// New allocates the frame buffer. ErrBufferSize is returned if the
// configured size can't hold two frames.
func New(
	capturer Capturer,
	surface display.Surface,
	in input.Provider,
	saver storage.Saver,
	conf Config,
) (*Session, error) {
	if conf.BufferSize == 0 {
		conf.BufferSize = capture.BufferSize
	}
	if conf.BufferSize < 2*capture.FrameSize {
		return nil, ErrBufferSize
	}
	if conf.Timeout <= 0 {
		conf.Timeout = capture.DefaultTimeout
	}
	return &Session{
		capturer:  capturer,
		surface:   surface,
		input:     in,
		saver:     saver,
		conf:      conf,
		buf:       make([]byte, conf.BufferSize),
		snapshots: make(chan chan []byte),
	}, nil
}

// Run steps the session until it is shut down, then releases the frame
// buffer.
func (s *Session) Run(ctx context.Context) {
	log.Print("press trigger to take a picture")
	log.Print("press exit to quit")
	for s.Step(ctx) {
	}
	s.Close()
}

// Step runs one iteration of the loop. It returns false once the
// session has been shut down.
func (s *Session) Step(ctx context.Context) bool {
	if s.shutdown {
		return false
	}
	if ctx.Err() != nil {
		log.Printf("stopping: %v", ctx.Err())
		s.shutdown = true
		return false
	}

	state, err := s.input.Scan()
	if err != nil {
		log.Printf("failed to read buttons: %v", err)
	}
	if state.Down.Has(input.ButtonExit) {
		log.Print("exit pressed")
		s.shutdown = true
		return false
	}

	s.preview()

	if state.Held.Has(input.ButtonTrigger) {
		if !s.triggerHeld {
			s.present()
			s.triggerHeld = true
			s.capture()
		}
	} else {
		s.triggerHeld = false
	}

	s.present()
	if s.conf.Heartbeat != nil {
		s.conf.Heartbeat()
	}
	return true
}

func (s *Session) preview() {
	req := capture.NewRequest(capture.PortCam1, s.conf.Timeout)
	res := s.capturer.Single(s.buf, req)

	s.mu.Lock()
	s.stats.Previews++
	if res.TimedOut() {
		s.stats.Timeouts++
	}
	s.mu.Unlock()

	frame := s.buf[:req.FrameSize()]
	rgb565.Blit(s.surface.Framebuffer(), frame, 0, 0, req.Width, req.Height)

	select {
	case reply := <-s.snapshots:
		reply <- append([]byte(nil), frame...)
	default:
	}
}

func (s *Session) capture() {
	req := capture.NewRequest(capture.PortBoth, s.conf.Timeout)
	log.Print("taking stereo picture")
	res := s.capturer.Dual(s.buf, req)

	s.mu.Lock()
	s.stats.Captures++
	if res.TimedOut() {
		s.stats.Timeouts++
	}
	s.mu.Unlock()

	complete := res.Complete()
	if !complete {
		log.Printf("stereo capture incomplete: %v", res.Err())
		if s.conf.DiscardIncomplete {
			return
		}
	}

	name, err := s.saver.Save(s.buf[:2*req.FrameSize()])
	s.mu.Lock()
	if err != nil {
		s.stats.FailedSaves++
	} else {
		s.stats.Saved++
		s.stats.LastSaved = name
	}
	s.mu.Unlock()
	if err != nil {
		log.Printf("failed to save capture: %v", err)
		return
	}
	if s.conf.Reporter != nil {
		s.conf.Reporter.CaptureSaved(name, complete)
	}
}

func (s *Session) present() {
	if err := display.Present(s.surface); err != nil {
		log.Printf("failed to present frame: %v", err)
	}
}

// Snapshot returns a copy of the next preview frame. It is safe to
// call from other goroutines.
func (s *Session) Snapshot(ctx context.Context) ([]byte, error) {
	reply := make(chan []byte, 1)
	select {
	case s.snapshots <- reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case frame := <-reply:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns a snapshot of the session counters. It is safe to call
// from other goroutines.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close releases the frame buffer. Calling it more than once is safe.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.shutdown = true
		s.buf = nil
		log.Print("frame buffer released")
	})
}

// Hang logs msg and waits for the exit button or ctx to be done. It is
// used when startup fails so the failure stays visible until the user
// acknowledges it.
func Hang(ctx context.Context, in input.Provider, msg string) {
	log.Print(msg)
	log.Print("press exit to quit")
	ticker := time.NewTicker(hangPollInterval)
	defer ticker.Stop()
	for {
		if in != nil {
			if state, err := in.Scan(); err == nil && state.Down.Has(input.ButtonExit) {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
