package portal

import (
	"context"
	"errors"
	"strings"
	"testing"

	"portalflow-engine/internal/config"
	"portalflow-engine/internal/driver"
	"portalflow-engine/internal/pool"
)

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Portal.BaseURL = "https://portal.test"
	cfg.Portal.SettleTimeout = "50ms"
	cfg.Portal.BootTimeout = "100ms"
	cfg.Loader.StabilityThreshold = 2
	cfg.Loader.MaxCycles = 5
	cfg.Loader.ScrollPause = "1ms"
	return cfg
}

type fakeFactory struct {
	d       *driver.Fake
	err     error
	lastURL string
}

func (f *fakeFactory) NewPage(url string) (driver.PageDriver, error) {
	f.lastURL = url
	if f.err != nil {
		return nil, f.err
	}
	return f.d, nil
}

type fakeSolver struct {
	text   string
	err    error
	called bool
}

func (s *fakeSolver) Solve(context.Context, driver.PageDriver) (string, error) {
	s.called = true
	return s.text, s.err
}

// loginPage builds a fake login form whose submit reveals the user menu.
func loginPage() (*driver.Fake, *driver.FakeElement, *driver.FakeElement) {
	fake := driver.NewFake()
	user := fake.SetElement("#username", nil)
	pass := fake.SetElement("#password", nil)
	fake.SetElement("#login-submit", &driver.FakeElement{
		OnClick: func(f *driver.Fake) { f.SetElement("#user-menu", nil) },
	})
	return fake, user, pass
}

func TestLoginFillsFormAndReturnsDriver(t *testing.T) {
	fake, user, pass := loginPage()
	factory := &fakeFactory{d: fake}
	auth := NewAuthenticator(testConfig().Portal, factory, nil)

	creds := pool.Credentials{Username: "ops-team", Password: "secret"}
	d, err := auth.Login(context.Background(), "ops-team", creds)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if d != driver.PageDriver(fake) {
		t.Error("login must return the authenticated page driver")
	}
	if user.Value != "ops-team" || pass.Value != "secret" {
		t.Errorf("credentials not typed: user=%q pass=%q", user.Value, pass.Value)
	}
	if !strings.HasSuffix(factory.lastURL, "/login") {
		t.Errorf("expected the login path, got %q", factory.lastURL)
	}
	if fake.IsClosed() {
		t.Error("successful login must not close the driver")
	}
}

func TestLoginRejectedClosesDriver(t *testing.T) {
	fake := driver.NewFake()
	fake.SetElement("#username", nil)
	fake.SetElement("#password", nil)
	fake.SetElement("#login-submit", nil) // marker never appears
	fake.SetElement("#login-error", &driver.FakeElement{Text: "Invalid credentials"})
	auth := NewAuthenticator(testConfig().Portal, &fakeFactory{d: fake}, nil)

	_, err := auth.Login(context.Background(), "ops-team", pool.Credentials{})
	if err == nil {
		t.Fatal("expected login failure")
	}
	if !strings.Contains(err.Error(), "Invalid credentials") {
		t.Errorf("expected the portal's error text, got %v", err)
	}
	if fake.CloseCount() != 1 {
		t.Errorf("failed login must close the driver exactly once, got %d", fake.CloseCount())
	}
}

func TestLoginSolvesCaptcha(t *testing.T) {
	fake, _, _ := loginPage()
	captcha := fake.SetElement("#captcha", nil)
	solver := &fakeSolver{text: "XK7Q"}
	auth := NewAuthenticator(testConfig().Portal, &fakeFactory{d: fake}, solver)

	if _, err := auth.Login(context.Background(), "ops-team", pool.Credentials{}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !solver.called {
		t.Error("solver was not invoked")
	}
	if captcha.Value != "XK7Q" {
		t.Errorf("captcha answer not typed, got %q", captcha.Value)
	}
}

func TestLoginCaptchaWithoutSolverFails(t *testing.T) {
	fake, _, _ := loginPage()
	fake.SetElement("#captcha", nil)
	auth := NewAuthenticator(testConfig().Portal, &fakeFactory{d: fake}, nil)

	_, err := auth.Login(context.Background(), "ops-team", pool.Credentials{})
	if err == nil {
		t.Fatal("expected failure when captcha has no solver")
	}
	if !fake.IsClosed() {
		t.Error("driver must be closed on the captcha failure path")
	}
}

func TestLoginPageOpenFailure(t *testing.T) {
	boom := errors.New("browser gone")
	auth := NewAuthenticator(testConfig().Portal, &fakeFactory{err: boom}, nil)

	_, err := auth.Login(context.Background(), "ops-team", pool.Credentials{})
	if !errors.Is(err, boom) {
		t.Errorf("expected the factory error, got %v", err)
	}
}

func TestSessionLostDetection(t *testing.T) {
	fake := driver.NewFake()
	lost, err := SessionLost(fake)
	if err != nil || lost {
		t.Errorf("healthy page: lost=%v err=%v", lost, err)
	}

	fake.SetElement("#session-expired", nil)
	lost, err = SessionLost(fake)
	if err != nil || !lost {
		t.Errorf("expired page: lost=%v err=%v", lost, err)
	}
}
