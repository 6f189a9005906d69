// Package portal implements the concrete flows against the terminal
// operator's web portal: login, container lookup, appointment booking, and
// status inquiry. DOM specifics (selectors, scroll targets, milestone class
// names) live here; the packages underneath stay portal-agnostic.
package portal

import (
	"errors"
	"strings"
	"time"

	"portalflow-engine/internal/config"
	"portalflow-engine/internal/driver"
)

// ErrSessionLost means the portal served its session-expired interstitial in
// place of the requested page. Callers owning a pooled session should evict
// it and retry with a fresh login.
var ErrSessionLost = errors.New("portal: session expired interstitial detected")

// DriverFactory opens fresh page drivers. Both browser launchers satisfy it.
type DriverFactory interface {
	NewPage(url string) (driver.PageDriver, error)
}

// expiredProbes match the interstitial shown when the portal discards a
// server-side session. The portal has shipped at least two variants of it.
var expiredProbes = []driver.Probe{
	{Name: "expired_banner", Selector: "#session-expired"},
	{Name: "expired_dialog", Selector: ".session-timeout-dialog"},
}

// SessionLost reports whether d is currently showing the expired
// interstitial.
func SessionLost(d driver.PageDriver) (bool, error) {
	ref, _, err := driver.FirstMatch(d, expiredProbes)
	if err != nil {
		return false, err
	}
	return ref != nil, nil
}

// guardSession fails a flow early when the portal dropped the session.
func guardSession(d driver.PageDriver) error {
	lost, err := SessionLost(d)
	if err != nil {
		return err
	}
	if lost {
		return ErrSessionLost
	}
	return nil
}

func pageURL(cfg config.PortalConfig, path string) string {
	return strings.TrimRight(cfg.BaseURL, "/") + path
}

// waitAny polls the probe chain until any probe matches or the timeout
// expires. Absence at timeout is ok=false, not an error.
func waitAny(d driver.PageDriver, probes []driver.Probe, timeout time.Duration) (driver.ElementRef, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		ref, _, err := driver.FirstMatch(d, probes)
		if err != nil {
			return nil, false, err
		}
		if ref != nil {
			return ref, true, nil
		}
		if time.Now().After(deadline) {
			return nil, false, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
}
