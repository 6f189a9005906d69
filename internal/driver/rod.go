package driver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"portalflow-engine/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// RodLauncher owns one detached Chrome instance and hands out isolated
// incognito pages as PageDrivers.
type RodLauncher struct {
	cfg        config.BrowserConfig
	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
}

func NewRodLauncher(cfg config.BrowserConfig) *RodLauncher {
	return &RodLauncher{cfg: cfg}
}

// Start connects to an existing Chrome or launches a new one using rod's launcher.
func (l *RodLauncher) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser != nil {
		// Verify the existing connection is still alive before reusing it.
		if _, err := l.browser.Version(); err == nil {
			return nil
		}
		log.Printf("stale browser connection detected, reconnecting")
		_ = l.browser.Close()
		l.browser = nil
		l.controlURL = ""
	}

	controlURL := l.cfg.DebuggerURL
	if controlURL == "" && len(l.cfg.Launch) > 0 {
		bin := l.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(l.cfg.IsHeadless())
		for _, rawFlag := range l.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fallback: let rod pick the port and defaults.
			fallback := launcher.New().Bin(bin).Headless(l.cfg.IsHeadless())
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
			controlURL = alt
		} else {
			controlURL = url
		}
	}
	if controlURL == "" {
		url, err := launcher.New().Headless(l.cfg.IsHeadless()).Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	l.browser = browser
	l.controlURL = controlURL
	log.Printf("browser connected at %s", controlURL)
	return nil
}

// NewPage opens a fresh incognito page navigated to url.
func (l *RodLauncher) NewPage(url string) (PageDriver, error) {
	l.mu.Lock()
	browser := l.browser
	l.mu.Unlock()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             l.cfg.GetViewportWidth(),
		Height:            l.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		log.Printf("warning: failed to set viewport: %v", err)
	}

	if url != "" {
		if err := page.Timeout(l.cfg.GetNavigationTimeout()).Navigate(url); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("navigate %s: %w", url, err)
		}
	}

	return &rodDriver{page: page, cfg: l.cfg}, nil
}

// Shutdown closes the underlying browser. Pages handed out earlier become invalid.
func (l *RodLauncher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.browser != nil {
		err = l.browser.Close()
		l.browser = nil
	}
	l.controlURL = ""
	return err
}

type rodDriver struct {
	page      *rod.Page
	cfg       config.BrowserConfig
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func (d *rodDriver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *rodDriver) Navigate(url string) error {
	if d.isClosed() {
		return ErrClosed
	}
	if err := d.page.Timeout(d.cfg.GetNavigationTimeout()).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return d.page.WaitLoad()
}

func (d *rodDriver) Find(selector string) (ElementRef, bool, error) {
	if d.isClosed() {
		return nil, false, ErrClosed
	}
	has, el, err := d.page.Has(selector)
	if err != nil {
		return nil, false, fmt.Errorf("probe %s: %w", selector, err)
	}
	if !has {
		return nil, false, nil
	}
	return el, true, nil
}

func (d *rodDriver) Click(ref ElementRef) error {
	el, err := d.element(ref)
	if err != nil {
		return err
	}
	return el.Click("left", 1)
}

func (d *rodDriver) Type(ref ElementRef, text string) error {
	el, err := d.element(ref)
	if err != nil {
		return err
	}
	// Replace any existing value rather than appending to it.
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	return el.Input(text)
}

func (d *rodDriver) ReadText(ref ElementRef) (string, error) {
	el, err := d.element(ref)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (d *rodDriver) CurrentURL() (string, error) {
	if d.isClosed() {
		return "", ErrClosed
	}
	info, err := d.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *rodDriver) Eval(js string) (interface{}, error) {
	if d.isClosed() {
		return nil, ErrClosed
	}
	res, err := d.page.Eval(js)
	if err != nil {
		return nil, err
	}
	return res.Value.Val(), nil
}

func (d *rodDriver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		err = d.page.Close()
	})
	return err
}

func (d *rodDriver) element(ref ElementRef) (*rod.Element, error) {
	if d.isClosed() {
		return nil, ErrClosed
	}
	el, ok := ref.(*rod.Element)
	if !ok {
		return nil, fmt.Errorf("element ref %T does not belong to the rod driver", ref)
	}
	return el, nil
}
