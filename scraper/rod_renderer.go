package scraper

import (
	"context"
	"fmt"
	"os"
	"time"

	"resalewatch/models"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/sirupsen/logrus"
)

// resaleWaitTimeout bounds the wait for resale content; queue pages never show any
const resaleWaitTimeout = 60 * time.Second

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// waitForResaleJS resolves once the page shows resale or priced content
const waitForResaleJS = `() => {
	const t = (document.body && document.body.innerText) || "";
	return /Verified Resale Ticket/i.test(t) ||
		/£\d+(\.\d{2})?\s*(each|per)/i.test(t) ||
		/\bResale\b/i.test(t);
}`

// BrowserOptions configures the headless browser renderer
type BrowserOptions struct {
	Bin         string
	Timeout     time.Duration
	Timezone    string
	Screenshots bool
}

// BrowserRenderer renders pages in headless Chromium via rod
type BrowserRenderer struct {
	browser *rod.Browser
	opts    BrowserOptions
	logger  *logrus.Logger
}

// NewBrowserRenderer launches Chromium and connects to it
func NewBrowserRenderer(opts BrowserOptions, logger *logrus.Logger) (*BrowserRenderer, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.Timezone == "" {
		opts.Timezone = "Europe/London"
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Leakless(false)

	bin := opts.Bin
	if bin == "" {
		// Use system Chromium in Docker, auto-detect locally
		if _, err := os.Stat("/usr/bin/chromium-browser"); err == nil {
			bin = "/usr/bin/chromium-browser"
		}
	}
	if bin != "" {
		l = l.Bin(bin)
		logger.WithField("bin", bin).Info("Using system Chromium")
	} else {
		logger.Info("Using auto-detected Chromium")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	logger.WithField("control_url", controlURL).Info("Browser connected")

	return &BrowserRenderer{browser: browser, opts: opts, logger: logger}, nil
}

// Render loads url in a fresh stealth page and returns its rendered content.
// Every browser step gets its own timeout; a page whose content cannot be
// read back is an error, never an empty snapshot.
func (br *BrowserRenderer) Render(ctx context.Context, url string) (models.PageSnapshot, error) {
	page, err := stealth.Page(br.browser)
	if err != nil {
		return models.PageSnapshot{}, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	p := page.Context(ctx)

	if err := br.step(p, br.opts.Timeout, func(sp *rod.Page) error {
		if err := sp.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      desktopUserAgent,
			AcceptLanguage: "en-GB,en;q=0.9",
		}); err != nil {
			return fmt.Errorf("failed to set user agent: %w", err)
		}
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: br.opts.Timezone}).Call(sp); err != nil {
			br.logger.WithError(err).Debug("Could not override timezone")
		}
		if err := sp.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             1366,
			Height:            768,
			DeviceScaleFactor: 1,
		}); err != nil {
			return fmt.Errorf("failed to set viewport: %w", err)
		}
		return nil
	}); err != nil {
		return models.PageSnapshot{}, err
	}

	if err := br.step(p, br.opts.Timeout, func(sp *rod.Page) error {
		if err := sp.Navigate(url); err != nil {
			return fmt.Errorf("failed to navigate: %w", err)
		}
		if err := sp.WaitLoad(); err != nil {
			return fmt.Errorf("page did not load: %w", err)
		}
		return nil
	}); err != nil {
		return models.PageSnapshot{}, err
	}

	// Small settle time helps in containers
	if err := SleepContext(ctx, 2500*time.Millisecond); err != nil {
		return models.PageSnapshot{}, err
	}

	br.acceptCookies(p)

	// Best effort: resale content may never show up
	_ = br.step(p, resaleWaitTimeout, func(sp *rod.Page) error {
		return sp.Wait(rod.Eval(waitForResaleJS))
	})

	br.scrollABit(ctx, p)

	snap := models.PageSnapshot{FinalURL: url}
	if err := br.step(p, br.opts.Timeout, func(sp *rod.Page) error {
		body, err := sp.Element("body")
		if err != nil {
			return fmt.Errorf("failed to find body: %w", err)
		}
		if snap.BodyText, err = body.Text(); err != nil {
			return fmt.Errorf("failed to read body text: %w", err)
		}
		if snap.HTML, err = sp.HTML(); err != nil {
			return fmt.Errorf("failed to read page html: %w", err)
		}
		if info, err := sp.Info(); err == nil {
			snap.FinalURL = info.URL
			snap.Title = info.Title
		}
		if br.opts.Screenshots {
			snap.Screenshot, _ = sp.Screenshot(false, nil)
		}
		return nil
	}); err != nil {
		return models.PageSnapshot{}, err
	}

	return snap, nil
}

// step runs fn on a clone of p bounded by its own timeout
func (br *BrowserRenderer) step(p *rod.Page, timeout time.Duration, fn func(*rod.Page) error) error {
	sp := p.Timeout(timeout)
	defer sp.CancelTimeout()
	return fn(sp)
}

func (br *BrowserRenderer) acceptCookies(p *rod.Page) {
	cp := p.Timeout(3 * time.Second)
	defer cp.CancelTimeout()
	btn, err := cp.ElementR("button", `/^\s*(accept|accept all|i accept)\s*$/i`)
	if err != nil {
		return
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		br.logger.WithError(err).Debug("Cookie banner click failed")
		return
	}
	time.Sleep(800 * time.Millisecond)
}

// scrollABit forces lazy-loaded listings to render
func (br *BrowserRenderer) scrollABit(ctx context.Context, p *rod.Page) {
	for i := 0; i < 4; i++ {
		if err := p.Mouse.Scroll(0, 900, 1); err != nil {
			return
		}
		if SleepContext(ctx, 800*time.Millisecond) != nil {
			return
		}
	}
	_ = p.Mouse.Scroll(0, -1200, 1)
	_ = SleepContext(ctx, 800*time.Millisecond)
}

// Close closes the browser
func (br *BrowserRenderer) Close() error {
	if br.browser == nil {
		return nil
	}
	return br.browser.Close()
}
