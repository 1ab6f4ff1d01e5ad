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
	"errors"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/TheCacophonyProject/stereo-recorder/input"
	"github.com/TheCacophonyProject/stereo-recorder/session"
)

const (
	dbusName = "org.cacophony.stereorecorder"
	dbusPath = "/org/cacophony/stereorecorder"
)

type statser interface {
	Stats() session.Stats
}

type service struct {
	remote   *input.Remote
	session  statser
	snapshot *snapshotter
}

func startService(remote *input.Remote, sess statser, snap *snapshotter) (*dbus.Conn, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, errors.New("name already taken")
	}

	s := &service{
		remote:   remote,
		session:  sess,
		snapshot: snap,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return conn, nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// TakePicture presses the trigger for one loop iteration.
func (s *service) TakePicture() *dbus.Error {
	if s.remote == nil {
		return makeDbusError("TakePicture", errors.New("no trigger available"))
	}
	s.remote.Press(input.ButtonTrigger)
	return nil
}

// TakeSnapshot saves the current preview frame as a still
func (s *service) TakeSnapshot() *dbus.Error {
	if s.snapshot == nil {
		return makeDbusError("TakeSnapshot", errors.New("recorder not running"))
	}
	if err := s.snapshot.take(); err != nil {
		return makeDbusError("TakeSnapshot", err)
	}
	return nil
}

// Status returns the capture counters.
func (s *service) Status() (map[string]int32, *dbus.Error) {
	if s.session == nil {
		return nil, makeDbusError("Status", errors.New("recorder not running"))
	}
	stats := s.session.Stats()
	return map[string]int32{
		"previews":    int32(stats.Previews),
		"captures":    int32(stats.Captures),
		"saved":       int32(stats.Saved),
		"failedSaves": int32(stats.FailedSaves),
		"timeouts":    int32(stats.Timeouts),
	}, nil
}

// LastCapture returns the file name of the last saved capture.
func (s *service) LastCapture() (string, *dbus.Error) {
	if s.session == nil {
		return "", makeDbusError("LastCapture", errors.New("recorder not running"))
	}
	return s.session.Stats().LastSaved, nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + "." + name,
		Body: []interface{}{err.Error()},
	}
}
