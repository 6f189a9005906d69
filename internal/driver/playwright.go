package driver

import (
	"fmt"
	"io"
	"sync"

	"portalflow-engine/internal/config"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightLauncher is the playwright-backed counterpart of RodLauncher.
// Each page gets its own browser process and context, so closing a driver
// tears down everything it owns.
type PlaywrightLauncher struct {
	cfg config.BrowserConfig
	mu  sync.Mutex
	pw  *playwright.Playwright
}

func NewPlaywrightLauncher(cfg config.BrowserConfig) *PlaywrightLauncher {
	return &PlaywrightLauncher{cfg: cfg}
}

// Start installs and boots the playwright runtime. Output is discarded so the
// driver stays quiet on stdio transports.
func (l *PlaywrightLauncher) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw != nil {
		return nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}
	l.pw = pw
	return nil
}

// NewPage launches a browser, creates an isolated context and page, and
// navigates to url when given.
func (l *PlaywrightLauncher) NewPage(url string) (PageDriver, error) {
	l.mu.Lock()
	pw := l.pw
	l.mu.Unlock()
	if pw == nil {
		return nil, fmt.Errorf("playwright not started")
	}

	headless := l.cfg.IsHeadless()
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
	})
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  l.cfg.GetViewportWidth(),
			Height: l.cfg.GetViewportHeight(),
		},
	})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("create context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		_ = context.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	page.SetDefaultTimeout(float64(l.cfg.GetNavigationTimeout().Milliseconds()))

	d := &playwrightDriver{browser: browser, context: context, page: page}
	if url != "" {
		if err := d.Navigate(url); err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	return d, nil
}

// Shutdown stops the playwright runtime.
func (l *PlaywrightLauncher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	return err
}

type playwrightDriver struct {
	browser   playwright.Browser
	context   playwright.BrowserContext
	page      playwright.Page
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func (d *playwrightDriver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *playwrightDriver) Navigate(url string) error {
	if d.isClosed() {
		return ErrClosed
	}
	if _, err := d.page.Goto(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (d *playwrightDriver) Find(selector string) (ElementRef, bool, error) {
	if d.isClosed() {
		return nil, false, ErrClosed
	}
	handle, err := d.page.QuerySelector(selector)
	if err != nil {
		return nil, false, fmt.Errorf("probe %s: %w", selector, err)
	}
	if handle == nil {
		return nil, false, nil
	}
	return handle, true, nil
}

func (d *playwrightDriver) Click(ref ElementRef) error {
	handle, err := d.handle(ref)
	if err != nil {
		return err
	}
	return handle.Click()
}

func (d *playwrightDriver) Type(ref ElementRef, text string) error {
	handle, err := d.handle(ref)
	if err != nil {
		return err
	}
	return handle.Fill(text)
}

func (d *playwrightDriver) ReadText(ref ElementRef) (string, error) {
	handle, err := d.handle(ref)
	if err != nil {
		return "", err
	}
	return handle.TextContent()
}

func (d *playwrightDriver) CurrentURL() (string, error) {
	if d.isClosed() {
		return "", ErrClosed
	}
	return d.page.URL(), nil
}

func (d *playwrightDriver) Eval(js string) (interface{}, error) {
	if d.isClosed() {
		return nil, ErrClosed
	}
	return d.page.Evaluate(js)
}

func (d *playwrightDriver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		_ = d.page.Close()
		_ = d.context.Close()
		err = d.browser.Close()
	})
	return err
}

func (d *playwrightDriver) handle(ref ElementRef) (playwright.ElementHandle, error) {
	if d.isClosed() {
		return nil, ErrClosed
	}
	handle, ok := ref.(playwright.ElementHandle)
	if !ok {
		return nil, fmt.Errorf("element ref %T does not belong to the playwright driver", ref)
	}
	return handle, nil
}
