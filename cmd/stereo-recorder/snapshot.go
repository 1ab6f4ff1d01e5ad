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

package main

import (
	"context"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheCacophonyProject/stereo-recorder/capture"
	"github.com/TheCacophonyProject/stereo-recorder/rgb565"
)

const (
	snapshotName          = "still.png"
	allowedSnapshotPeriod = 500 * time.Millisecond
	snapshotTimeout       = 2 * time.Second
)

type frameSource interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// snapshotter saves the preview camera's current frame as a PNG so it
// can be viewed remotely while aiming the rig. It is only a preview;
// captures are always saved as raw RGB565.
type snapshotter struct {
	mu           sync.Mutex
	dir          string
	source       frameSource
	previousTime time.Time
	nowFunc      func() time.Time
}

func newSnapshotter(dir string, source frameSource) *snapshotter {
	return &snapshotter{
		dir:     dir,
		source:  source,
		nowFunc: time.Now,
	}
}

func (sn *snapshotter) take() error {
	sn.mu.Lock()
	defer sn.mu.Unlock()

	if sn.nowFunc().Sub(sn.previousTime) < allowedSnapshotPeriod {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	frame, err := sn.source.Snapshot(ctx)
	if err != nil {
		return err
	}
	img := rgb565.Image(frame, capture.Width, capture.Height)

	if err := os.MkdirAll(sn.dir, 0755); err != nil {
		return err
	}
	out, err := os.Create(filepath.Join(sn.dir, snapshotName))
	if err != nil {
		return err
	}
	defer out.Close()

	if err := png.Encode(out, img); err != nil {
		return err
	}

	// the time will be changed only if the attempt is successful
	sn.previousTime = sn.nowFunc()
	return nil
}

func (sn *snapshotter) delete() {
	err := os.Remove(filepath.Join(sn.dir, snapshotName))
	if err != nil && !os.IsNotExist(err) {
		log.Printf("error deleting snapshot image: %v", err)
	}
}
