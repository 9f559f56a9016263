// Package browser drives a real Chrome for recording and replay. The default
// backend is chromedp; rod is available as an alternative replay backend.
package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Options configures how Chrome instances are launched.
type Options struct {
	ExecPath string
	Headless bool
	// Device names an entry of Devices; empty means a desktop viewport of
	// Width x Height with UserAgent.
	Device    string
	Width     int64
	Height    int64
	UserAgent string
}

// FindChrome returns the path of a local Chrome or Chromium executable, or ""
// when none is installed.
func FindChrome() string {
	var chromePaths []string
	switch runtime.GOOS {
	case "linux":
		chromePaths = []string{
			"/usr/bin/google-chrome-stable",
			"/usr/bin/google-chrome",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
			"/snap/bin/chromium",
			"/opt/google/chrome/google-chrome",
		}
	case "darwin":
		chromePaths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		chromePaths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}

	for _, path := range chromePaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium-browser", "chromium"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

func (o Options) execPath() (string, error) {
	if o.ExecPath != "" {
		return o.ExecPath, nil
	}
	if path := FindChrome(); path != "" {
		return path, nil
	}
	return "", fmt.Errorf("chrome browser not found, install Google Chrome or Chromium or set CHROME_PATH")
}

func (o Options) allocatorOptions(path string) []chromedp.ExecAllocatorOption {
	dev := o.device()
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(path),
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("no-pings", true),
		chromedp.WindowSize(int(dev.Width), int(dev.Height)),
		chromedp.UserAgent(dev.UserAgent),
	)
}

// newContext launches a Chrome process and returns a context bound to its
// first tab. chromedp's own logging goes to logger.
func newContext(parent context.Context, opts Options, logger *zap.Logger) (context.Context, context.CancelFunc, error) {
	path, err := opts.execPath()
	if err != nil {
		return nil, nil, err
	}
	sugar := logger.Sugar()
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts.allocatorOptions(path)...)
	ctx, ctxCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)

	// Starts the browser.
	if err := chromedp.Run(ctx, emulate(opts.device())); err != nil {
		ctxCancel()
		allocCancel()
		return nil, nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	return ctx, func() {
		ctxCancel()
		allocCancel()
	}, nil
}
