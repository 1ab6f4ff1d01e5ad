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

package capture

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout     = errors.New("timed out waiting for frame")
	ErrNoEvent     = errors.New("no receive event to wait on")
	ErrShortBuffer = errors.New("buffer too small for capture")
)

// Stage names one step of the capture protocol.
type Stage string

const (
	StageBuffer       Stage = "Buffer"
	StageTransferUnit Stage = "TransferUnit"
	StageTransfer     Stage = "SetTransferBytes"
	StageActivate     Stage = "Activate"
	StageDeactivate   Stage = "Deactivate"
	StageClear        Stage = "ClearBuffer"
	StageSyncVsync    Stage = "SynchronizeVsync"
	StageStart        Stage = "StartCapture"
	StageReceive      Stage = "SetReceiving"
	StageWait         Stage = "Wait"
	StageStop         Stage = "StopCapture"
	StageRelease      Stage = "ReleaseEvent"
)

// StageResult is the outcome of one protocol step.
type StageResult struct {
	Stage Stage
	Port  Port
	Err   error
}

func (s StageResult) String() string {
	status := "ok"
	if s.Err != nil {
		status = s.Err.Error()
	}
	return fmt.Sprintf("%s(%s): %s", s.Stage, s.Port, status)
}

// Result collects the outcome of every step of a capture. A capture
// always runs to the end; the caller decides what a failed step means
// for the frame that was received.
type Result struct {
	Stages []StageResult
}

func (r *Result) add(stage Stage, port Port, err error) StageResult {
	s := StageResult{Stage: stage, Port: port, Err: err}
	r.Stages = append(r.Stages, s)
	return s
}

// Complete reports whether every posted receive signalled before its
// timeout, ie. the buffer holds freshly received frames.
func (r *Result) Complete() bool {
	waits := r.Stage(StageWait)
	for _, s := range waits {
		if s.Err != nil {
			return false
		}
	}
	return len(waits) > 0
}

// TimedOut reports whether any wait expired.
func (r *Result) TimedOut() bool {
	for _, s := range r.Stages {
		if s.Stage == StageWait && s.Err == ErrTimeout {
			return true
		}
	}
	return false
}

// Failures returns the steps that reported an error.
func (r *Result) Failures() []StageResult {
	var out []StageResult
	for _, s := range r.Stages {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Err returns the first failed step as an error, or nil.
func (r *Result) Err() error {
	for _, s := range r.Stages {
		if s.Err != nil {
			return fmt.Errorf("%s(%s): %v", s.Stage, s.Port, s.Err)
		}
	}
	return nil
}

// Stage returns the results recorded for the given step in order.
func (r *Result) Stage(stage Stage) []StageResult {
	var out []StageResult
	for _, s := range r.Stages {
		if s.Stage == stage {
			out = append(out, s)
		}
	}
	return out
}
