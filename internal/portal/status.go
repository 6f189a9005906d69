package portal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"portalflow-engine/internal/config"
	"portalflow-engine/internal/driver"
	"portalflow-engine/internal/progress"
)

const (
	milestoneBarSelector = "#milestone-bar"

	milestonesJSONJS = `() => JSON.stringify(Array.from(document.querySelectorAll('#milestone-bar .milestone')).map(m => ({
		name: (m.getAttribute('data-name') || m.textContent || '').trim(),
		classes: m.className,
		date: ((m.querySelector('.milestone-date') || {}).textContent || '').trim()
	})))`
)

// milestoneRow is the raw shape serialized out of the milestone bar.
type milestoneRow struct {
	Name    string `json:"name"`
	Classes string `json:"classes"`
	Date    string `json:"date"`
}

// StatusInquiry reads a container's milestone bar and classifies its standing
// against a reference milestone.
type StatusInquiry struct {
	cfg config.PortalConfig
}

func NewStatusInquiry(cfg config.Config) *StatusInquiry {
	return &StatusInquiry{cfg: cfg.Portal}
}

// Inquire opens the tracking page for containerNo and classifies it against
// referenceName (matched case-insensitively among the rendered milestones).
func (s *StatusInquiry) Inquire(d driver.PageDriver, containerNo, referenceName string) (progress.Result, error) {
	target := pageURL(s.cfg, s.cfg.TrackingPath) + "?container=" + url.QueryEscape(containerNo)
	if err := d.Navigate(target); err != nil {
		return progress.Result{}, err
	}
	if err := guardSession(d); err != nil {
		return progress.Result{}, err
	}

	_, ok, err := driver.WaitFor(d, milestoneBarSelector, s.cfg.GetBootTimeout())
	if err != nil {
		return progress.Result{}, err
	}
	if !ok {
		return progress.Result{}, errors.New("milestone bar did not render")
	}

	rows, err := readMilestones(d)
	if err != nil {
		return progress.Result{}, err
	}
	return progress.Classify(buildClassifierInput(rows, referenceName))
}

func readMilestones(d driver.PageDriver) ([]milestoneRow, error) {
	val, err := d.Eval(milestonesJSONJS)
	if err != nil {
		return nil, fmt.Errorf("read milestones: %w", err)
	}
	raw, ok := val.(string)
	if !ok {
		return nil, fmt.Errorf("read milestones: expected JSON string, got %T", val)
	}
	var rows []milestoneRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("decode milestones: %w", err)
	}
	return rows, nil
}

// buildClassifierInput maps the raw bar onto the classifier's model: ordered
// markers, the reference position, and dated markers downstream of it.
func buildClassifierInput(rows []milestoneRow, referenceName string) progress.Input {
	in := progress.Input{
		ReferenceName:  referenceName,
		ReferenceIndex: -1,
	}
	for i, r := range rows {
		in.Markers = append(in.Markers, progress.Marker{
			Index: i,
			State: visualState(r.Classes),
			Date:  r.Date,
		})
		if strings.EqualFold(r.Name, referenceName) {
			in.ReferenceIndex = i
			in.ReferenceHasDate = r.Date != ""
		}
	}
	if in.ReferenceIndex < 0 {
		return in
	}
	for _, r := range rows[in.ReferenceIndex+1:] {
		in.Corroborating = append(in.Corroborating, progress.Corroborating{
			Name:    r.Name,
			HasDate: r.Date != "",
			Date:    r.Date,
		})
	}
	return in
}

// visualState maps the portal's milestone classes to the classifier's states.
func visualState(classes string) progress.VisualState {
	for _, c := range strings.Fields(classes) {
		switch c {
		case "milestone-done", "milestone-reached", "completed":
			return progress.StateReached
		case "milestone-pending", "milestone-upcoming":
			return progress.StateNeutral
		}
	}
	return progress.StateUnknown
}
