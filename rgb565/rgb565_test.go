package rgb565

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpackPureBlue(t *testing.T) {
	r, g, b := Unpack(0xF800)
	assert.Equal(t, uint8(0), r)
	assert.Equal(t, uint8(0), g)
	assert.Equal(t, uint8(248), b)
}

func TestUnpackChannels(t *testing.T) {
	r, g, b := Unpack(0x001F)
	assert.Equal(t, []uint8{248, 0, 0}, []uint8{r, g, b})

	r, g, b = Unpack(0x07E0)
	assert.Equal(t, []uint8{0, 252, 0}, []uint8{r, g, b})

	r, g, b = Unpack(0xFFFF)
	assert.Equal(t, []uint8{248, 252, 248}, []uint8{r, g, b})

	r, g, b = Unpack(0)
	assert.Equal(t, []uint8{0, 0, 0}, []uint8{r, g, b})
}

func TestUnpackPackRoundTrip(t *testing.T) {
	for s := 0; s <= 0xFFFF; s++ {
		r, g, b := Unpack(uint16(s))
		if Pack(r, g, b) != uint16(s) {
			t.Fatalf("round trip failed for 0x%04X", s)
		}
	}
}

func TestPackDropsLowBits(t *testing.T) {
	assert.Equal(t, Pack(0xF8, 0xFC, 0xF8), Pack(0xFF, 0xFF, 0xFF))
}

func TestSampleIsLittleEndian(t *testing.T) {
	raw := []byte{0x00, 0xF8, 0x1F, 0x00}
	assert.Equal(t, uint16(0xF800), Sample(raw, 0))
	assert.Equal(t, uint16(0x001F), Sample(raw, 1))

	PutSample(raw, 1, 0x07E0)
	assert.Equal(t, []byte{0xE0, 0x07}, raw[2:])
}

func makeRaw(samples ...uint16) []byte {
	raw := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		PutSample(raw, i, s)
	}
	return raw
}

func TestBlitTouchesOnlyTheRectangle(t *testing.T) {
	const poison = 0xAA
	dst := make([]byte, 16*BytesPerPixel)
	for i := range dst {
		dst[i] = poison
	}
	src := makeRaw(0x001F, 0x07E0, 0xF800, 0xFFFF)

	Blit(dst, src, 0, 0, 2, 2)

	touched := map[int]bool{}
	for j := 0; j < 2; j++ {
		for i := 0; i < 2; i++ {
			v := SlotOffset(0, 0, i, j, 2)
			require.Zero(t, v%BytesPerPixel)
			assert.False(t, touched[v], "slot %d written twice", v)
			touched[v] = true
		}
	}
	assert.Len(t, touched, 4)

	for off := 0; off < len(dst); off += BytesPerPixel {
		if touched[off] {
			continue
		}
		assert.Equal(t, []byte{poison, poison, poison}, dst[off:off+BytesPerPixel], "offset %d", off)
	}
}

func TestBlitRotatedLayout(t *testing.T) {
	dst := make([]byte, 5*BytesPerPixel)
	src := makeRaw(0x001F, 0x07E0, 0xF800, 0xFFFF)

	Blit(dst, src, 0, 0, 2, 2)

	// Row 0 lands at y' = 2 and row 1 at y' = 1, columns are height apart.
	assert.Equal(t, []byte{248, 0, 0}, dst[2*3:3*3])     // (i=0, j=0)
	assert.Equal(t, []byte{0, 252, 0}, dst[4*3:5*3])     // (i=1, j=0)
	assert.Equal(t, []byte{0, 0, 248}, dst[1*3:2*3])     // (i=0, j=1)
	assert.Equal(t, []byte{248, 252, 248}, dst[3*3:4*3]) // (i=1, j=1)
	assert.Equal(t, []byte{0, 0, 0}, dst[0:3])
}

func TestBlitOffset(t *testing.T) {
	dst := make([]byte, 32*BytesPerPixel)
	src := makeRaw(0xFFFF)

	Blit(dst, src, 2, 1, 1, 1)

	v := SlotOffset(2, 1, 0, 0, 1)
	assert.Equal(t, (1+1+2*1)*BytesPerPixel, v)
	assert.Equal(t, []byte{248, 252, 248}, dst[v:v+3])
}

func TestBlitDropsOverhang(t *testing.T) {
	// A full height blit into a surface of exactly width*height pixels
	// overhangs by one slot. It must not panic.
	const width, height = 4, 3
	dst := make([]byte, width*height*BytesPerPixel)
	src := make([]byte, width*height*BytesPerSample)
	for i := 0; i < width*height; i++ {
		PutSample(src, i, 0xFFFF)
	}

	assert.NotPanics(t, func() { Blit(dst, src, 0, 0, width, height) })
	assert.Equal(t, []byte{0, 0, 0}, dst[0:3])
	assert.Equal(t, []byte{248, 252, 248}, dst[3:6])
}

func BenchmarkBlitPreview(b *testing.B) {
	const width, height = 400, 240
	dst := make([]byte, width*height*BytesPerPixel)
	src := make([]byte, width*height*BytesPerSample)
	for i := 0; i < width*height; i++ {
		PutSample(src, i, uint16(i))
	}
	b.SetBytes(int64(len(src)))
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		Blit(dst, src, 0, 0, width, height)
	}
}

func TestImage(t *testing.T) {
	raw := make([]byte, 2*3*BytesPerSample)
	PutSample(raw, 0, 0xF800)
	PutSample(raw, 4, Pack(0xF8, 0, 0))

	img := Image(raw, 3, 2)

	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
	assert.Equal(t, color.RGBA{B: 248, A: 0xFF}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 248, A: 0xFF}, img.RGBAAt(1, 1))
	assert.Equal(t, color.RGBA{A: 0xFF}, img.RGBAAt(2, 1))
}

func TestImageShortFrame(t *testing.T) {
	raw := make([]byte, BytesPerSample)
	PutSample(raw, 0, 0xFFFF)

	img := Image(raw, 2, 2)

	assert.Equal(t, color.RGBA{R: 248, G: 252, B: 248, A: 0xFF}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(1, 0))
}
