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

// Package display defines the preview panel the recorder draws on.
package display

import (
	"fmt"
	"sync"

	"github.com/TheCacophonyProject/stereo-recorder/rgb565"
)

// Panel geometry. The panel is mounted rotated so its memory is column
// major; see rgb565.Blit.
const (
	Width  = 400
	Height = 240
	Size   = Width * Height * rgb565.BytesPerPixel
)

// Surface is a fixed size pixel region, 3 bytes per pixel, that is
// shown on the panel.
type Surface interface {
	// Framebuffer returns the region to draw the next frame into.
	Framebuffer() []byte
	Flush() error
	WaitVSync() error
	Swap() error
	Close() error
}

// Present shows the frame drawn into the surface. Flush, vsync wait and
// swap are issued in that order, once per frame.
func Present(s Surface) error {
	if err := s.Flush(); err != nil {
		return fmt.Errorf("flush: %v", err)
	}
	if err := s.WaitVSync(); err != nil {
		return fmt.Errorf("vsync: %v", err)
	}
	if err := s.Swap(); err != nil {
		return fmt.Errorf("swap: %v", err)
	}
	return nil
}

// Memory is a Surface backed by plain memory.
type Memory struct {
	mu      sync.Mutex
	buffers [][]byte
	back    int
	frames  int
	calls   []string
}

// NewMemory returns a surface of size bytes, double buffered if double
// is set.
func NewMemory(size int, double bool) *Memory {
	n := 1
	if double {
		n = 2
	}
	m := &Memory{buffers: make([][]byte, n)}
	for i := range m.buffers {
		m.buffers[i] = make([]byte, size)
	}
	return m
}

func (m *Memory) Framebuffer() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffers[m.back]
}

// Front returns a copy of the frame currently shown.
func (m *Memory) Front() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	front := m.buffers[(m.back+1)%len(m.buffers)]
	return append([]byte(nil), front...)
}

func (m *Memory) Flush() error {
	m.record("flush")
	return nil
}

func (m *Memory) WaitVSync() error {
	m.record("vsync")
	return nil
}

func (m *Memory) Swap() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "swap")
	m.back = (m.back + 1) % len(m.buffers)
	m.frames++
	return nil
}

func (m *Memory) Close() error {
	m.record("close")
	return nil
}

// Frames returns the number of frames presented.
func (m *Memory) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Calls returns the surface calls made so far.
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *Memory) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}
