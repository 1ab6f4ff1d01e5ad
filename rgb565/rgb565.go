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

// Package rgb565 converts packed 16 bit camera samples into the 24 bit
// layout used by the display panel.
package rgb565

import "encoding/binary"

const (
	// BytesPerSample is the size of one packed sample in a raw frame.
	BytesPerSample = 2
	// BytesPerPixel is the size of one unpacked pixel on the display.
	BytesPerPixel = 3
)

// Unpack splits a packed sample into its three channels, each scaled
// up to 8 bits. Red occupies the low 5 bits, green the middle 6 and
// blue the high 5.
func Unpack(s uint16) (r, g, b uint8) {
	r = uint8(s&0x1F) << 3
	g = uint8((s>>5)&0x3F) << 2
	b = uint8((s>>11)&0x1F) << 3
	return r, g, b
}

// Pack is the inverse of Unpack. The low bits of each channel that
// don't fit in the packed width are dropped.
func Pack(r, g, b uint8) uint16 {
	return uint16(r>>3) | uint16(g>>2)<<5 | uint16(b>>3)<<11
}

// Sample returns the packed sample at index i of a raw frame.
func Sample(raw []byte, i int) uint16 {
	return binary.LittleEndian.Uint16(raw[i*BytesPerSample:])
}

// PutSample stores a packed sample at index i of a raw frame.
func PutSample(raw []byte, i int, s uint16) {
	binary.LittleEndian.PutUint16(raw[i*BytesPerSample:], s)
}
