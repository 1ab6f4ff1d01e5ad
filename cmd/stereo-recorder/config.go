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
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	yaml "gopkg.in/yaml.v2"

	"github.com/TheCacophonyProject/stereo-recorder/capture"
	"github.com/TheCacophonyProject/stereo-recorder/throttle"
)

type Config struct {
	DeviceName        string                   `yaml:"-"`
	OutputDir         string                   `yaml:"output-dir"`
	MinDiskSpace      uint64                   `yaml:"min-disk-space"`
	CaptureTimeout    time.Duration            `yaml:"capture-timeout"`
	DiscardIncomplete bool                     `yaml:"discard-incomplete"`
	Cameras           CamerasConfig            `yaml:"cameras"`
	Display           string                   `yaml:"display"`
	Buttons           ButtonsConfig            `yaml:"buttons"`
	Throttler         throttle.ThrottlerConfig `yaml:"throttler"`
}

type CamerasConfig struct {
	Left     string `yaml:"left"`
	Right    string `yaml:"right"`
	PowerPin string `yaml:"power-pin"`
}

type ButtonsConfig struct {
	Trigger string `yaml:"trigger"`
	Exit    string `yaml:"exit"`
}

var defaultConfig = Config{
	OutputDir:      "/var/spool/stereo",
	MinDiskSpace:   200,
	CaptureTimeout: capture.DefaultTimeout,
	Cameras: CamerasConfig{
		Left:     "/dev/video0",
		Right:    "/dev/video1",
		PowerPin: "GPIO23",
	},
	Display: "/dev/fb1",
	Buttons: ButtonsConfig{
		Trigger: "GPIO5",
		Exit:    "GPIO6",
	},
	Throttler: throttle.DefaultThrottlerConfig(),
}

func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

// loadConfig reads the config file. When allowMissing is set a missing
// file gives the default config.
func loadConfig(filename string, allowMissing bool) (*Config, error) {
	conf, err := ParseConfigFile(filename)
	if allowMissing && os.IsNotExist(err) {
		log.Printf("%s not found, using default config", filename)
		return ParseConfig(nil)
	}
	return conf, err
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := defaultConfig
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (conf *Config) Validate() error {
	if conf.OutputDir == "" {
		return errors.New("output-dir must be set")
	}
	if conf.CaptureTimeout <= 0 {
		return errors.New("capture-timeout must be positive")
	}
	if conf.Cameras.Left == "" || conf.Cameras.Right == "" {
		return errors.New("both cameras must be set")
	}
	if conf.Cameras.Left == conf.Cameras.Right {
		return fmt.Errorf("left and right cameras are both %s", conf.Cameras.Left)
	}
	if conf.Buttons.Trigger == "" || conf.Buttons.Exit == "" {
		return errors.New("trigger and exit buttons must be set")
	}
	if conf.Buttons.Trigger == conf.Buttons.Exit {
		return errors.New("trigger and exit buttons must be different pins")
	}
	if conf.Throttler.ApplyThrottling {
		if conf.Throttler.BucketCaptures < 1 {
			return errors.New("throttler bucket-captures must be at least 1")
		}
		if conf.Throttler.MinRefill <= 0 {
			return errors.New("throttler min-refill must be positive")
		}
	}
	return nil
}

// readDeviceName returns the device name from the shared Cacophony
// device configuration.
func readDeviceName(configDir string) (string, error) {
	configRW, err := goconfig.New(configDir)
	if err != nil {
		return "", err
	}
	var deviceConfig goconfig.Device
	if err := configRW.Unmarshal(goconfig.DeviceKey, &deviceConfig); err != nil {
		return "", err
	}
	return deviceConfig.Name, nil
}
