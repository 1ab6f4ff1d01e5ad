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

package rgb565

// SlotOffset returns the byte offset in a display surface of the
// pixel drawn for source row j, column i when a width x height image
// is placed at (x, y). The panel stores pixels column major with the
// rows running bottom to top.
func SlotOffset(x, y, i, j, height int) int {
	drawY := y + height - j
	drawX := x + i
	return (drawY + drawX*height) * BytesPerPixel
}

// Blit writes the raw RGB565 frame src (width x height samples, row
// major) into the display surface dst at (x, y). Bounds of the
// rectangle are the caller's concern; slots that land outside dst are
// dropped.
func Blit(dst, src []byte, x, y, width, height int) {
	for j := 0; j < height; j++ {
		row := j * width
		for i := 0; i < width; i++ {
			v := SlotOffset(x, y, i, j, height)
			if v < 0 || v+BytesPerPixel > len(dst) {
				continue
			}
			r, g, b := Unpack(Sample(src, row+i))
			dst[v] = r
			dst[v+1] = g
			dst[v+2] = b
		}
	}
}
