package portal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"portalflow-engine/internal/config"
	"portalflow-engine/internal/driver"
	"portalflow-engine/internal/loader"
	"portalflow-engine/internal/workflow"
)

// Slot is one appointment time offered on the confirmation step.
type Slot struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Booking wizard probes.
var (
	stepIndicatorProbes = []driver.Probe{
		{Name: "active_step", Selector: "#booking-wizard .step.active"},
		{Name: "aria_current", Selector: `[aria-current="step"]`},
	}
	nextProbes = []driver.Probe{
		{Name: "wizard_next", Selector: "#booking-wizard .btn-next"},
		{Name: "action_attr", Selector: `button[data-action="next"]`},
	}
	serviceProbes = []driver.Probe{
		{Name: "id", Selector: "#service-type"},
		{Name: "name_attr", Selector: `select[name="service"]`},
	}
	dateProbes = []driver.Probe{
		{Name: "id", Selector: "#booking-date"},
		{Name: "name_attr", Selector: `input[name="booking_date"]`},
	}
	pickerOpenerProbes = []driver.Probe{
		{Name: "id", Selector: "#container-picker"},
		{Name: "class", Selector: ".container-picker-toggle"},
	}
)

const (
	slotListSelector = "#available-slots"

	countOptionsJS = `() => document.querySelectorAll('#container-options li').length`

	slotsJSONJS = `() => JSON.stringify(Array.from(document.querySelectorAll('#available-slots .slot')).map(s => ({
		label: (s.textContent || '').trim(),
		value: s.getAttribute('data-slot') || ''
	})))`
)

// pickerScrollTargets locate the picker dropdown's virtualized list.
var pickerScrollTargets = loader.ScrollTargets{
	KnownID:         "container-options",
	AttributeMarker: "data-virtual-scroll",
	ClassName:       "picker-options",
}

// Booking builds the three-phase appointment workflow: service selection,
// container and date details, then confirmation collecting the offered slots.
type Booking struct {
	cfg  config.PortalConfig
	opts loader.Options
}

func NewBooking(cfg config.Config) *Booking {
	return &Booking{
		cfg: cfg.Portal,
		opts: loader.Options{
			StabilityThreshold: cfg.Loader.StabilityThreshold,
			MaxCycles:          cfg.Loader.MaxCycles,
			Pause:              cfg.Loader.GetScrollPause(),
		},
	}
}

// Definition returns the wizard's phase list for the workflow engine.
func (b *Booking) Definition() (*workflow.Definition, error) {
	return workflow.NewDefinition("appointment_booking", readStepIndicator,
		workflow.PhaseSpec{
			Ordinal:  1,
			Required: []string{"service_type"},
			Fills: []workflow.FieldFill{
				{Field: "service_type", Probes: serviceProbes},
			},
			Transition: nextProbes,
		},
		workflow.PhaseSpec{
			Ordinal:  2,
			Required: []string{"container_no", "booking_date"},
			Fills: []workflow.FieldFill{
				{Field: "booking_date", Probes: dateProbes},
			},
			Action:     b.pickContainer,
			Transition: nextProbes,
		},
		workflow.PhaseSpec{
			Ordinal:  3,
			Terminal: true,
			Collect:  b.collectSlots,
		},
	)
}

// Open navigates the session's page to a fresh booking wizard.
func (b *Booking) Open(d driver.PageDriver) error {
	if err := d.Navigate(pageURL(b.cfg, b.cfg.BookingPath)); err != nil {
		return err
	}
	if err := guardSession(d); err != nil {
		return err
	}
	_, ok, err := waitAny(d, stepIndicatorProbes, b.cfg.GetBootTimeout())
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("booking wizard did not render")
	}
	return nil
}

// pickContainer selects a container in the virtualized dropdown: open the
// picker, scroll until the option for the wanted number renders, click it.
func (b *Booking) pickContainer(d driver.PageDriver, fields map[string]string) error {
	number := fields["container_no"]

	opener, _, err := driver.FirstMatch(d, pickerOpenerProbes)
	if err != nil {
		return err
	}
	if opener == nil {
		return errors.New("container picker not found")
	}
	if err := d.Click(opener); err != nil {
		return fmt.Errorf("open container picker: %w", err)
	}

	optionSel := fmt.Sprintf(`#container-options li[data-container=%q]`, number)
	src := loader.NewPageSource(d, countOptionsJS, pickerScrollTargets)
	res, err := loader.Load(src, loader.FindID(func() (bool, error) {
		_, ok, ferr := d.Find(optionSel)
		return ok, ferr
	}), b.opts)
	if err != nil {
		return err
	}
	if res.StopReason != loader.StopFound {
		return fmt.Errorf("container %s not present in picker (%s after %d cycles)",
			number, res.StopReason, res.Cycles)
	}

	option, ok, err := d.Find(optionSel)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("container option %s vanished before click", number)
	}
	return d.Click(option)
}

// collectSlots reads the confirmation step's offered appointment times. An
// empty slot list is a valid outcome.
func (b *Booking) collectSlots(d driver.PageDriver) (interface{}, error) {
	_, ok, err := driver.WaitFor(d, slotListSelector, b.cfg.GetSettleTimeout())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("slot list did not render")
	}

	val, err := d.Eval(slotsJSONJS)
	if err != nil {
		return nil, fmt.Errorf("read slots: %w", err)
	}
	raw, isStr := val.(string)
	if !isStr {
		return nil, fmt.Errorf("read slots: expected JSON string, got %T", val)
	}
	var slots []Slot
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	return slots, nil
}

// readStepIndicator reads the wizard's own progress signal: the active step
// element's data attribute, falling back to the first number in its text.
func readStepIndicator(d driver.PageDriver) (int, bool) {
	ref, _, err := driver.FirstMatch(d, stepIndicatorProbes)
	if err != nil || ref == nil {
		return 0, false
	}
	text, err := d.ReadText(ref)
	if err != nil {
		return 0, false
	}
	return parseOrdinal(text)
}

// parseOrdinal extracts the first integer from text like "Step 2 of 3".
func parseOrdinal(text string) (int, bool) {
	start := -1
	for i, r := range text {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, err := strconv.Atoi(text[start:i])
			return n, err == nil
		}
	}
	if start >= 0 {
		n, err := strconv.Atoi(strings.TrimSpace(text[start:]))
		return n, err == nil
	}
	return 0, false
}
