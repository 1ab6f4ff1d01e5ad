package camera

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vladimirvivien/go4vl/v4l2"

	"github.com/TheCacophonyProject/stereo-recorder/capture"
)

func TestRigBeforeSetup(t *testing.T) {
	rig := New("/dev/video0", "/dev/video1")

	_, err := rig.TransferUnit(capture.Width, capture.Height)
	assert.Equal(t, errNotOpen, err)
	assert.Error(t, rig.Activate(capture.SelectBoth))
	assert.Error(t, rig.StartCapture(capture.PortCam1))
	assert.NoError(t, rig.Close())
}

func TestRigRejectsTrimming(t *testing.T) {
	settings := capture.DefaultSettings()
	settings.Trimming = true

	assert.Equal(t, errTrimming, New("a", "b").Setup(settings))
}

func TestSetTransferBytesChecksFrameSize(t *testing.T) {
	rig := New("a", "b")

	assert.NoError(t, rig.SetTransferBytes(capture.PortBoth, capture.FrameSize, capture.Width, capture.Height))
	assert.Equal(t, errShortTransfer, rig.SetTransferBytes(capture.PortCam1, capture.FrameSize-1, capture.Width, capture.Height))
}

func TestReceiveNeedsSinglePort(t *testing.T) {
	rig := New("a", "b")

	ev, err := rig.SetReceiving(make([]byte, 4), capture.PortBoth, 4)
	assert.Nil(t, ev)
	assert.Equal(t, errSinglePort, err)
}

func TestReceiveFromIdleCamera(t *testing.T) {
	rig := New("a", "b")

	ev, err := rig.SetReceiving(make([]byte, 4), capture.PortCam2, 4)
	assert.Nil(t, ev)
	assert.Error(t, err)
}

// fakeDevice behaves like a go4vl device: the output channel is made
// once and is closed when the stream loop's context ends.
type fakeDevice struct {
	mu       sync.Mutex
	output   chan []byte
	starts   int
	closes   int
	loopDone bool
	controls map[v4l2.CtrlID]v4l2.CtrlValue
	pix      v4l2.PixFormat
}

func newFakeDevice(pix v4l2.PixFormat) *fakeDevice {
	return &fakeDevice{
		output:   make(chan []byte),
		controls: make(map[v4l2.CtrlID]v4l2.CtrlValue),
		pix:      pix,
	}
}

func (d *fakeDevice) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loopDone {
		return errors.New("send on closed output")
	}
	d.starts++
	go func() {
		<-ctx.Done()
		d.mu.Lock()
		d.loopDone = true
		close(d.output)
		d.mu.Unlock()
	}()
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *fakeDevice) GetOutput() <-chan []byte { return d.output }

func (d *fakeDevice) GetPixFormat() (v4l2.PixFormat, error) { return d.pix, nil }

func (d *fakeDevice) SetControlValue(id v4l2.CtrlID, val v4l2.CtrlValue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.controls[id] = val
	return nil
}

func (d *fakeDevice) emit(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.output <- frame
}

func (d *fakeDevice) counts() (starts, closes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.closes
}

func newTestRig(t *testing.T) (*Rig, map[string]*fakeDevice) {
	devs := make(map[string]*fakeDevice)
	rig := New("left", "right")
	rig.open = func(path string, pix v4l2.PixFormat, fps uint32) (videoDevice, error) {
		assert.Equal(t, uint32(framesPerSecond), fps)
		dev := newFakeDevice(pix)
		devs[path] = dev
		return dev, nil
	}
	require.NoError(t, rig.Setup(capture.DefaultSettings()))
	return rig, devs
}

func waitForFrames(t *testing.T, s *stream, n uint64) {
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.seq == n
	}, time.Second, time.Millisecond)
}

func waitDone(t *testing.T, ev capture.Event) {
	select {
	case <-ev.Done():
	case <-time.After(time.Second):
		t.Fatal("receive never completed")
	}
}

func TestSetupAppliesControls(t *testing.T) {
	var logBuf bytes.Buffer
	log.SetOutput(&logBuf)
	defer log.SetOutput(os.Stderr)

	rig, devs := newTestRig(t)
	defer rig.Close()

	require.Len(t, devs, 2)
	for _, dev := range devs {
		assert.Equal(t, uint32(pixelFmtRGB565), dev.pix.PixelFormat)
		assert.Equal(t, uint32(capture.Width), dev.pix.Width)
		assert.Equal(t, v4l2.CtrlValue(1), dev.controls[v4l2.CtrlAutoWhiteBalance])
		assert.Equal(t, v4l2.CtrlValue(exposureAperturePriority), dev.controls[v4l2.CtrlCameraExposureAuto])
	}
	assert.Contains(t, logBuf.String(), "noise filter")
}

func TestSetupOpenFailure(t *testing.T) {
	rig := New("left", "right")
	rig.open = func(string, v4l2.PixFormat, uint32) (videoDevice, error) {
		return nil, errors.New("no such device")
	}

	assert.EqualError(t, rig.Setup(capture.DefaultSettings()), "left: no such device")
}

func TestTransferUnitFromPixFormat(t *testing.T) {
	rig, devs := newTestRig(t)
	defer rig.Close()

	devs["left"].pix.SizeImage = 1234
	unit, err := rig.TransferUnit(capture.Width, capture.Height)
	require.NoError(t, err)
	assert.Equal(t, 1234, unit)
}

func TestDeactivateKeepsStreaming(t *testing.T) {
	rig, devs := newTestRig(t)

	require.NoError(t, rig.Activate(capture.SelectBoth))
	require.NoError(t, rig.Activate(capture.SelectNone))
	_, err := rig.SetReceiving(make([]byte, 4), capture.PortCam1, 4)
	assert.Error(t, err)

	require.NoError(t, rig.Activate(capture.SelectBoth))
	for _, dev := range devs {
		starts, _ := dev.counts()
		assert.Equal(t, 1, starts)
	}

	require.NoError(t, rig.ClearBuffer(capture.PortBoth))
	require.NoError(t, rig.StartCapture(capture.PortBoth))
	left, right := make([]byte, 4), make([]byte, 4)
	ev1, err := rig.SetReceiving(left, capture.PortCam1, 4)
	require.NoError(t, err)
	ev2, err := rig.SetReceiving(right, capture.PortCam2, 4)
	require.NoError(t, err)

	devs["left"].emit([]byte{1, 1, 1, 1})
	devs["right"].emit([]byte{2, 2, 2, 2})
	waitDone(t, ev1)
	waitDone(t, ev2)
	assert.NoError(t, ev1.Err())
	assert.Equal(t, []byte{1, 1, 1, 1}, left)
	assert.Equal(t, []byte{2, 2, 2, 2}, right)
	ev1.Close()
	ev2.Close()

	require.NoError(t, rig.Close())
	for _, dev := range devs {
		_, closes := dev.counts()
		assert.Equal(t, 1, closes)
	}
}

func TestClearBufferDropsStaleFrames(t *testing.T) {
	rig, devs := newTestRig(t)
	defer rig.Close()

	require.NoError(t, rig.Activate(capture.SelectBoth))
	right := devs["right"]
	// Frames keep arriving while only the left camera is read.
	for i := byte(1); i <= 3; i++ {
		right.emit([]byte{i, i, i, i})
	}
	waitForFrames(t, rig.streams[1], 3)

	require.NoError(t, rig.ClearBuffer(capture.PortBoth))
	require.NoError(t, rig.StartCapture(capture.PortBoth))
	buf := make([]byte, 4)
	ev, err := rig.SetReceiving(buf, capture.PortCam2, 4)
	require.NoError(t, err)
	defer ev.Close()

	select {
	case <-ev.Done():
		t.Fatal("receive completed with a stale frame")
	case <-time.After(20 * time.Millisecond):
	}

	right.emit([]byte{9, 9, 9, 9})
	waitDone(t, ev)
	assert.NoError(t, ev.Err())
	assert.Equal(t, []byte{9, 9, 9, 9}, buf)
}

func TestEmptyFramesAreSkipped(t *testing.T) {
	rig, devs := newTestRig(t)
	defer rig.Close()

	require.NoError(t, rig.Activate(capture.SelectOut1))
	require.NoError(t, rig.StartCapture(capture.PortCam1))
	buf := make([]byte, 4)
	ev, err := rig.SetReceiving(buf, capture.PortCam1, 4)
	require.NoError(t, err)
	defer ev.Close()

	devs["left"].emit([]byte{})
	devs["left"].emit([]byte{5, 5, 5, 5})
	waitDone(t, ev)
	assert.Equal(t, []byte{5, 5, 5, 5}, buf)
}

func TestShortFrame(t *testing.T) {
	rig, devs := newTestRig(t)
	defer rig.Close()

	require.NoError(t, rig.Activate(capture.SelectOut1))
	require.NoError(t, rig.StartCapture(capture.PortCam1))
	ev, err := rig.SetReceiving(make([]byte, 4), capture.PortCam1, 4)
	require.NoError(t, err)
	defer ev.Close()

	devs["left"].emit([]byte{1, 2})
	waitDone(t, ev)
	assert.EqualError(t, ev.Err(), "short frame: 2 of 4 bytes")
}

func TestCloseEndsPendingReceive(t *testing.T) {
	rig, _ := newTestRig(t)

	require.NoError(t, rig.Activate(capture.SelectOut1))
	require.NoError(t, rig.StartCapture(capture.PortCam1))
	ev, err := rig.SetReceiving(make([]byte, 4), capture.PortCam1, 4)
	require.NoError(t, err)
	defer ev.Close()

	require.NoError(t, rig.Close())
	waitDone(t, ev)
	assert.Equal(t, errStreamClosed, ev.Err())
}
