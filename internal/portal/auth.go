package portal

import (
	"context"
	"errors"
	"fmt"

	"portalflow-engine/internal/config"
	"portalflow-engine/internal/driver"
	"portalflow-engine/internal/pool"
)

// CaptchaSolver resolves the login captcha to the text the form expects.
// Solving itself happens outside this package.
type CaptchaSolver interface {
	Solve(ctx context.Context, d driver.PageDriver) (string, error)
}

// Login form probes. The portal has renamed these ids across releases, so
// every lookup carries a fallback chain.
var (
	usernameProbes = []driver.Probe{
		{Name: "id", Selector: "#username"},
		{Name: "name_attr", Selector: `input[name="username"]`},
	}
	passwordProbes = []driver.Probe{
		{Name: "id", Selector: "#password"},
		{Name: "name_attr", Selector: `input[name="password"]`},
	}
	captchaProbes = []driver.Probe{
		{Name: "id", Selector: "#captcha"},
		{Name: "name_attr", Selector: `input[name="captcha"]`},
	}
	submitProbes = []driver.Probe{
		{Name: "id", Selector: "#login-submit"},
		{Name: "type_attr", Selector: `button[type="submit"]`},
	}
	loggedInProbes = []driver.Probe{
		{Name: "user_menu", Selector: "#user-menu"},
		{Name: "logout_link", Selector: `a[href*="logout"]`},
	}
	loginErrorProbes = []driver.Probe{
		{Name: "id", Selector: "#login-error"},
		{Name: "class", Selector: ".login-error"},
	}
)

// Authenticator drives the portal's login form. It satisfies the pool's
// Authenticator contract: on any failure path the page driver is closed
// before the error is returned.
type Authenticator struct {
	cfg     config.PortalConfig
	pages   DriverFactory
	captcha CaptchaSolver
}

// NewAuthenticator builds a portal authenticator. captcha may be nil; logins
// then fail when the portal presents one.
func NewAuthenticator(cfg config.PortalConfig, pages DriverFactory, captcha CaptchaSolver) *Authenticator {
	return &Authenticator{cfg: cfg, pages: pages, captcha: captcha}
}

// Login opens a fresh page, submits the login form, and waits for the
// logged-in marker. The returned driver is authenticated and ready for the
// flows; ownership passes to the caller.
func (a *Authenticator) Login(ctx context.Context, identity string, creds pool.Credentials) (driver.PageDriver, error) {
	d, err := a.pages.NewPage(pageURL(a.cfg, a.cfg.LoginPath))
	if err != nil {
		return nil, fmt.Errorf("open login page: %w", err)
	}
	if err := a.submitForm(ctx, d, creds); err != nil {
		_ = d.Close()
		return nil, err
	}
	if err := a.awaitLoggedIn(d); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (a *Authenticator) submitForm(ctx context.Context, d driver.PageDriver, creds pool.Credentials) error {
	// The login form renders only after the application boots.
	user, ok, err := waitAny(d, usernameProbes, a.cfg.GetBootTimeout())
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("login form did not render")
	}
	if err := d.Type(user, creds.Username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}

	pass, _, err := driver.FirstMatch(d, passwordProbes)
	if err != nil {
		return err
	}
	if pass == nil {
		return errors.New("password field not found")
	}
	if err := d.Type(pass, creds.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}

	if err := a.solveCaptcha(ctx, d); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	submit, _, err := driver.FirstMatch(d, submitProbes)
	if err != nil {
		return err
	}
	if submit == nil {
		return errors.New("login submit control not found")
	}
	return d.Click(submit)
}

// solveCaptcha fills the captcha input when the form shows one. A captcha
// with no configured solver is a hard failure, never a silent skip.
func (a *Authenticator) solveCaptcha(ctx context.Context, d driver.PageDriver) error {
	input, _, err := driver.FirstMatch(d, captchaProbes)
	if err != nil {
		return err
	}
	if input == nil {
		return nil
	}
	if a.captcha == nil {
		return errors.New("login requires a captcha but no solver is configured")
	}
	text, err := a.captcha.Solve(ctx, d)
	if err != nil {
		return fmt.Errorf("solve captcha: %w", err)
	}
	return d.Type(input, text)
}

func (a *Authenticator) awaitLoggedIn(d driver.PageDriver) error {
	_, ok, err := waitAny(d, loggedInProbes, a.cfg.GetBootTimeout())
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	// Pull the portal's own error text when it rendered one.
	if banner, _, berr := driver.FirstMatch(d, loginErrorProbes); berr == nil && banner != nil {
		if text, terr := d.ReadText(banner); terr == nil && text != "" {
			return fmt.Errorf("portal rejected login: %s", text)
		}
	}
	return errors.New("logged-in marker did not appear")
}
