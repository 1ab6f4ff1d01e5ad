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
	"encoding/json"
	"log"
	"path/filepath"
	"time"

	"github.com/godbus/dbus"
)

// eventRecorder queues events with the Cacophony event reporter.
type eventRecorder struct {
	deviceName string
}

func (er eventRecorder) WhenThrottled() {
	er.queue("stereoThrottle", nil)
}

func (er eventRecorder) CaptureSaved(name string, complete bool) {
	er.queue("stereoCapture", map[string]interface{}{
		"filename": filepath.Base(name),
		"complete": complete,
	})
}

func (er eventRecorder) queue(eventType string, details map[string]interface{}) {
	ts := time.Now()
	detailsJSON, err := er.eventJSON(eventType, details)
	if err != nil {
		log.Printf("Could not record %s event: %s", eventType, err)
		return
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		log.Printf("Could not record %s event: %s", eventType, err)
		return
	}

	obj := conn.Object("org.cacophony.Events", "/org/cacophony/Events")
	call := obj.Call("org.cacophony.Events.Queue", 0, detailsJSON, ts.UnixNano())
	if call.Err != nil {
		log.Printf("Could not record %s event: %s", eventType, call.Err)
	}
}

func (er eventRecorder) eventJSON(eventType string, details map[string]interface{}) ([]byte, error) {
	description := map[string]interface{}{
		"type": eventType,
	}
	if details != nil {
		description["details"] = details
	}
	if er.deviceName != "" {
		description["device"] = er.deviceName
	}
	return json.Marshal(map[string]interface{}{
		"description": description,
	})
}
