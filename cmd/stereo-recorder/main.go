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
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"
	"github.com/godbus/dbus"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"github.com/TheCacophonyProject/stereo-recorder/camera"
	"github.com/TheCacophonyProject/stereo-recorder/camera/sim"
	"github.com/TheCacophonyProject/stereo-recorder/capture"
	"github.com/TheCacophonyProject/stereo-recorder/display"
	"github.com/TheCacophonyProject/stereo-recorder/display/fbdev"
	"github.com/TheCacophonyProject/stereo-recorder/input"
	inputgpio "github.com/TheCacophonyProject/stereo-recorder/input/gpio"
	"github.com/TheCacophonyProject/stereo-recorder/loglimiter"
	"github.com/TheCacophonyProject/stereo-recorder/session"
	"github.com/TheCacophonyProject/stereo-recorder/storage"
	"github.com/TheCacophonyProject/stereo-recorder/throttle"
)

const (
	previewHz = 15 // approx

	framesPerSdNotify = 5 * previewHz

	statusLogInterval = time.Minute
)

var version = "<not set>"

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	ConfigDir  string `arg:"--config-dir" help:"path to device configuration directory"`
	Quick      bool   `arg:"-q,--quick" help:"don't cycle camera power on startup"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
	Simulate   bool   `arg:"-s,--simulate" help:"use simulated cameras and display"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/stereo-recorder.yaml"
	args.ConfigDir = goconfig.DefaultConfigDir
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	if !args.Timestamps {
		log.SetFlags(0) // Removes default timestamp flag
	}

	log.Printf("running version: %s", version)
	conf, err := loadConfig(args.ConfigFile, args.Simulate)
	if err != nil {
		return err
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	if name, err := readDeviceName(args.ConfigDir); err != nil {
		log.Printf("failed to read device name: %v", err)
	} else {
		conf.DeviceName = name
	}
	logConfig(conf)

	ctx, cancel := signalContext()
	defer cancel()

	res := new(resources)
	defer res.Close()

	buttons, err := openHardware(args, conf, res)
	remote := input.NewRemote(buttons)
	if err != nil {
		session.Hang(ctx, remote, fmt.Sprintf("startup failed: %v", err))
		return err
	}

	log.Print("setting up cameras")
	if err := res.rig.Setup(capture.DefaultSettings()); err != nil {
		session.Hang(ctx, remote, fmt.Sprintf("camera setup failed: %v", err))
		return err
	}

	events := eventRecorder{deviceName: conf.DeviceName}
	var saver storage.Saver = storage.New(conf.OutputDir, conf.MinDiskSpace)
	if conf.Throttler.ApplyThrottling {
		saver = throttle.NewThrottledStore(saver, &conf.Throttler, events)
	}

	capturer := capture.New(res.rig, loglimiter.New(statusLogInterval))
	sess, err := session.New(capturer, res.surface, remote, saver, session.Config{
		Timeout:           conf.CaptureTimeout,
		DiscardIncomplete: conf.DiscardIncomplete,
		Reporter:          events,
		Heartbeat:         newWatchdog(framesPerSdNotify, sdNotifyWatchdog),
	})
	if err != nil {
		session.Hang(ctx, remote, fmt.Sprintf("failed to allocate frame buffer: %v", err))
		return err
	}

	snap := newSnapshotter(conf.OutputDir, sess)
	defer snap.delete()

	log.Println("starting d-bus service")
	conn, err := startService(remote, sess, snap)
	if err != nil {
		if !args.Simulate {
			return err
		}
		log.Printf("d-bus service not available: %v", err)
	}
	res.conn = conn

	sess.Run(ctx)
	logStats(sess.Stats())
	return nil
}

// openHardware opens the cameras and display, and the buttons unless
// simulating. A nil provider is returned when there are no buttons.
func openHardware(args Args, conf *Config, res *resources) (input.Provider, error) {
	if args.Simulate {
		log.Print("using simulated cameras and display")
		res.surface = display.NewMemory(display.Size, true)
		res.rig = sim.New()
		return nil, nil
	}

	log.Print("host initialisation")
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	if !args.Quick {
		if err := cycleCameraPower(conf.Cameras.PowerPin); err != nil {
			return nil, err
		}
	}

	buttons, err := inputgpio.Open(conf.Buttons.Trigger, conf.Buttons.Exit)
	if err != nil {
		return nil, err
	}

	log.Printf("opening display %s", conf.Display)
	surface, err := fbdev.Open(conf.Display, display.Size)
	if err != nil {
		return buttons, err
	}
	res.surface = surface

	res.rig = camera.New(conf.Cameras.Left, conf.Cameras.Right)
	return buttons, nil
}

// resources are closed in order: cameras, display, then the d-bus
// connection.
type resources struct {
	once    sync.Once
	rig     capture.Provider
	surface display.Surface
	conn    *dbus.Conn
}

func (r *resources) Close() {
	r.once.Do(func() {
		if r.rig != nil {
			log.Print("closing cameras")
			if err := r.rig.Close(); err != nil {
				log.Printf("failed to close cameras: %v", err)
			}
		}
		if r.surface != nil {
			if err := r.surface.Close(); err != nil {
				log.Printf("failed to close display: %v", err)
			}
		}
		if r.conn != nil {
			r.conn.Close()
		}
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			log.Printf("received %s", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()
	return ctx, cancel
}

func newWatchdog(every int, notify func()) func() {
	notifyCount := 0
	return func() {
		if notifyCount++; notifyCount >= every {
			notify()
			notifyCount = 0
		}
	}
}

func sdNotifyWatchdog() {
	daemon.SdNotify(false, "WATCHDOG=1")
}

func logConfig(conf *Config) {
	log.Printf("device name: %s", conf.DeviceName)
	log.Printf("output dir: %s", conf.OutputDir)
	log.Printf("minimum disk space: %d", conf.MinDiskSpace)
	log.Printf("capture timeout: %s", conf.CaptureTimeout)
	log.Printf("discard incomplete: %v", conf.DiscardIncomplete)
	log.Printf("cameras: %+v", conf.Cameras)
	log.Printf("display: %s", conf.Display)
	log.Printf("buttons: %+v", conf.Buttons)
	log.Printf("throttler: %+v", conf.Throttler)
}

func logStats(stats session.Stats) {
	log.Printf("%d previews, %d captures, %d saved, %d failed saves, %d timeouts",
		stats.Previews, stats.Captures, stats.Saved, stats.FailedSaves, stats.Timeouts)
}

func cycleCameraPower(pinName string) error {
	if pinName == "" {
		return nil
	}

	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return fmt.Errorf("failed to find camera power pin %s", pinName)
	}

	log.Print("turning camera power off")
	if err := pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("failed to set camera power pin low: %v", err)
	}
	time.Sleep(2 * time.Second)

	log.Print("turning camera power on")
	if err := pin.Out(gpio.High); err != nil {
		return fmt.Errorf("failed to set camera power pin high: %v", err)
	}

	log.Print("waiting for camera startup")
	time.Sleep(3 * time.Second)
	log.Print("cameras should be ready")
	return nil
}
