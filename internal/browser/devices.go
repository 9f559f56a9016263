package browser

import (
	"context"
	"fmt"
	"sort"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// Device is a viewport profile applied to recording and replay sessions.
type Device struct {
	Name             string  `json:"name"`
	Width            int64   `json:"width"`
	Height           int64   `json:"height"`
	UserAgent        string  `json:"user_agent"`
	DevicePixelRatio float64 `json:"device_pixel_ratio"`
	Mobile           bool    `json:"mobile"`
	Touch            bool    `json:"touch"`
}

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36"

// Devices holds the predefined device profiles by name.
var Devices = map[string]Device{
	"iPhone 12 Pro": {
		Name:             "iPhone 12 Pro",
		Width:            390,
		Height:           844,
		DevicePixelRatio: 1.0,
		Mobile:           true,
		Touch:            true,
		UserAgent:        "Mozilla/5.0 (iPhone; CPU iPhone OS 14_7_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.2 Mobile/15E148 Safari/604.1",
	},
	"iPhone X": {
		Name:             "iPhone X",
		Width:            375,
		Height:           812,
		DevicePixelRatio: 1.0,
		Mobile:           true,
		Touch:            true,
		UserAgent:        "Mozilla/5.0 (iPhone; CPU iPhone OS 11_0 like Mac OS X) AppleWebKit/604.1.38 (KHTML, like Gecko) Version/11.0 Mobile/15A372 Safari/604.1",
	},
	"Galaxy S20": {
		Name:             "Galaxy S20",
		Width:            360,
		Height:           800,
		DevicePixelRatio: 1.0,
		Mobile:           true,
		Touch:            true,
		UserAgent:        "Mozilla/5.0 (Linux; Android 10; SM-G981B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/80.0.3987.162 Mobile Safari/537.36",
	},
	"iPad Pro": {
		Name:             "iPad Pro",
		Width:            1024,
		Height:           1366,
		DevicePixelRatio: 2.0,
		Mobile:           true,
		Touch:            true,
		UserAgent:        "Mozilla/5.0 (iPad; CPU OS 13_3 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/87.0.4280.77 Mobile/15E148 Safari/604.1",
	},
	"Desktop 1920x1080": {
		Name:             "Desktop 1920x1080",
		Width:            1920,
		Height:           1080,
		DevicePixelRatio: 1.0,
		UserAgent:        desktopUserAgent,
	},
}

// LookupDevice returns the named profile.
func LookupDevice(name string) (Device, error) {
	if d, ok := Devices[name]; ok {
		return d, nil
	}
	return Device{}, fmt.Errorf("unknown device %q", name)
}

// DeviceNames lists the predefined profiles in name order.
func DeviceNames() []string {
	names := make([]string, 0, len(Devices))
	for name := range Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// device resolves the profile to emulate. An unknown device name falls back
// to the configured desktop viewport.
func (o Options) device() Device {
	if d, err := LookupDevice(o.Device); err == nil {
		return d
	}
	d := Device{Name: "Desktop", Width: o.Width, Height: o.Height, UserAgent: o.UserAgent, DevicePixelRatio: 1.0}
	if d.Width <= 0 || d.Height <= 0 {
		d.Width, d.Height = 1280, 800
	}
	if d.UserAgent == "" {
		d.UserAgent = desktopUserAgent
	}
	return d
}

func emulate(d Device) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := emulation.SetDeviceMetricsOverride(d.Width, d.Height, d.DevicePixelRatio, d.Mobile).Do(ctx); err != nil {
			return fmt.Errorf("set device metrics: %w", err)
		}
		if err := emulation.SetUserAgentOverride(d.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
		return emulation.SetTouchEmulationEnabled(d.Touch).Do(ctx)
	})
}
