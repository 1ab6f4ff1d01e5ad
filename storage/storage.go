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

// Package storage persists captured stereo frames.
package storage

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

const (
	fileExt     = ".rgb565"
	timeLayout  = "2006-01-02_15-04-05"
	maxSuffixes = 1000
)

var ErrNoDiskSpace = errors.New("not enough free disk space to save capture")

// Saver persists a raw capture and returns the name it was saved as.
type Saver interface {
	Save(buf []byte) (string, error)
}

// ShortWriteError is returned when a capture was only partially
// written. The partial file is left in place.
type ShortWriteError struct {
	Name    string
	Written int
	Size    int
	Err     error
}

func (e *ShortWriteError) Error() string {
	msg := fmt.Sprintf("short write to %s: %d of %d bytes", e.Name, e.Written, e.Size)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ShortWriteError) Unwrap() error {
	return e.Err
}

// Store saves each capture to its own file in a directory, named after
// the time it was taken.
type Store struct {
	dir          string
	minDiskSpace uint64
	nowFunc      func() time.Time
}

// New returns a Store writing to dir. Saves fail while the filesystem
// has less than minDiskSpace MB free.
func New(dir string, minDiskSpace uint64) *Store {
	return &Store{
		dir:          dir,
		minDiskSpace: minDiskSpace,
		nowFunc:      time.Now,
	}
}

// CheckCanSave makes sure the output directory exists and has enough
// free space.
func (s *Store) CheckCanSave() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	enoughSpace, err := checkDiskSpace(s.minDiskSpace, s.dir)
	if err != nil {
		return fmt.Errorf("problem with checking disk space: %v", err)
	} else if !enoughSpace {
		return ErrNoDiskSpace
	}
	return nil
}

// Save writes buf to a new file. A file is never overwritten; if a file
// for the same second exists a numeric suffix is added.
func (s *Store) Save(buf []byte) (string, error) {
	if err := s.CheckCanSave(); err != nil {
		return "", err
	}
	f, err := s.create(s.nowFunc().Format(timeLayout))
	if err != nil {
		return "", err
	}
	name := f.Name()

	n, err := f.Write(buf)
	closeErr := f.Close()
	if n < len(buf) || err != nil {
		return name, &ShortWriteError{Name: name, Written: n, Size: len(buf), Err: err}
	}
	if closeErr != nil {
		return name, closeErr
	}
	log.Printf("saved capture: %s", name)
	return name, nil
}

func (s *Store) create(base string) (*os.File, error) {
	for i := 0; i < maxSuffixes; i++ {
		name := base
		if i > 0 {
			name += "_" + strconv.Itoa(i)
		}
		path := filepath.Join(s.dir, name+fileExt)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if os.IsExist(err) {
			continue
		}
		return f, err
	}
	return nil, fmt.Errorf("too many captures named %s", base)
}

func checkDiskSpace(mb uint64, dir string) (bool, error) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(dir, &fs); err != nil {
		return false, err
	}
	return fs.Bavail*uint64(fs.Bsize)/1024/1024 >= mb, nil
}
