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

// Package fbdev shows frames on a Linux framebuffer device.
package fbdev

import (
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// FBIO_WAITFORVSYNC from linux/fb.h
const ioctlWaitForVSync = 0x40044620

const fallbackFrameTime = time.Second / 30

// Surface is a double buffered surface drawn into memory and written to
// the framebuffer device on Flush.
type Surface struct {
	mu      sync.Mutex
	file    *os.File
	buffers [2][]byte
	back    int
	noVSync bool
	sleep   func(time.Duration)
}

// Open opens the framebuffer device at path for a frame of size bytes.
func Open(path string, size int) (*Surface, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Surface{
		file:    f,
		buffers: [2][]byte{make([]byte, size), make([]byte, size)},
		sleep:   time.Sleep,
	}, nil
}

func (s *Surface) Framebuffer() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffers[s.back]
}

// Flush writes the back buffer to the device.
func (s *Surface) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.file.WriteAt(s.buffers[s.back], 0)
	return err
}

// WaitVSync blocks until the next vertical blank. Drivers that don't
// support the vsync ioctl are paced at a fixed frame rate instead.
func (s *Surface) WaitVSync() error {
	s.mu.Lock()
	noVSync := s.noVSync
	s.mu.Unlock()
	if !noVSync {
		err := unix.IoctlSetPointerInt(int(s.file.Fd()), ioctlWaitForVSync, 0)
		if err == nil {
			return nil
		}
		log.Printf("framebuffer has no vsync, pacing frames instead: %v", err)
		s.mu.Lock()
		s.noVSync = true
		s.mu.Unlock()
	}
	s.sleep(fallbackFrameTime)
	return nil
}

func (s *Surface) Swap() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.back ^= 1
	return nil
}

func (s *Surface) Close() error {
	return s.file.Close()
}
