package portal

import (
	"encoding/json"
	"errors"
	"fmt"

	"portalflow-engine/internal/config"
	"portalflow-engine/internal/driver"
	"portalflow-engine/internal/loader"
)

// ContainerRow is one row of the portal's container grid.
type ContainerRow struct {
	Number   string `json:"number"`
	Status   string `json:"status"`
	Vessel   string `json:"vessel"`
	Location string `json:"location"`
}

const (
	gridSelector = "#container-grid"

	countRowsJS = `() => document.querySelectorAll('#container-grid .grid-row').length`

	rowsJSONJS = `() => JSON.stringify(Array.from(document.querySelectorAll('#container-grid .grid-row')).map(r => ({
		number: r.getAttribute('data-container') || '',
		status: r.getAttribute('data-status') || '',
		vessel: r.getAttribute('data-vessel') || '',
		location: r.getAttribute('data-location') || ''
	})))`
)

// gridScrollTargets locate the grid's virtualized viewport.
var gridScrollTargets = loader.ScrollTargets{
	KnownID:         "container-grid-viewport",
	AttributeMarker: "data-virtual-scroll",
	ClassName:       "grid-viewport",
}

// ContainerLookup retrieves container rows from the virtualized grid.
type ContainerLookup struct {
	cfg  config.PortalConfig
	opts loader.Options
}

func NewContainerLookup(cfg config.Config) *ContainerLookup {
	return &ContainerLookup{
		cfg: cfg.Portal,
		opts: loader.Options{
			StabilityThreshold: cfg.Loader.StabilityThreshold,
			MaxCycles:          cfg.Loader.MaxCycles,
			Pause:              cfg.Loader.GetScrollPause(),
		},
	}
}

// List scrolls the grid to exhaustion and returns every rendered row, along
// with the load diagnostics.
func (c *ContainerLookup) List(d driver.PageDriver) ([]ContainerRow, loader.Result, error) {
	if err := c.openGrid(d); err != nil {
		return nil, loader.Result{}, err
	}

	src := loader.NewPageSource(d, countRowsJS, gridScrollTargets)
	res, err := loader.Load(src, loader.Exhaustive(), c.opts)
	if err != nil {
		return nil, loader.Result{}, err
	}

	rows, err := c.readRows(d)
	if err != nil {
		return nil, res, err
	}
	return rows, res, nil
}

// Find scrolls until the row for number renders and returns it. A container
// absent from the grid yields a nil row with the loop's stop reason, not an
// error.
func (c *ContainerLookup) Find(d driver.PageDriver, number string) (*ContainerRow, loader.Result, error) {
	if err := c.openGrid(d); err != nil {
		return nil, loader.Result{}, err
	}

	rowSel := fmt.Sprintf(`#container-grid .grid-row[data-container=%q]`, number)
	src := loader.NewPageSource(d, countRowsJS, gridScrollTargets)
	res, err := loader.Load(src, loader.FindID(func() (bool, error) {
		_, ok, ferr := d.Find(rowSel)
		return ok, ferr
	}), c.opts)
	if err != nil {
		return nil, loader.Result{}, err
	}
	if res.StopReason != loader.StopFound {
		return nil, res, nil
	}

	rows, err := c.readRows(d)
	if err != nil {
		return nil, res, err
	}
	for i := range rows {
		if rows[i].Number == number {
			return &rows[i], res, nil
		}
	}
	// The probe matched but the serialized rows disagree; treat as absent.
	return nil, res, nil
}

func (c *ContainerLookup) openGrid(d driver.PageDriver) error {
	if err := d.Navigate(pageURL(c.cfg, c.cfg.ContainerPath)); err != nil {
		return err
	}
	if err := guardSession(d); err != nil {
		return err
	}
	_, ok, err := driver.WaitFor(d, gridSelector, c.cfg.GetBootTimeout())
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("container grid did not render")
	}
	return nil
}

func (c *ContainerLookup) readRows(d driver.PageDriver) ([]ContainerRow, error) {
	val, err := d.Eval(rowsJSONJS)
	if err != nil {
		return nil, fmt.Errorf("read grid rows: %w", err)
	}
	raw, ok := val.(string)
	if !ok {
		return nil, fmt.Errorf("read grid rows: expected JSON string, got %T", val)
	}
	var rows []ContainerRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("decode grid rows: %w", err)
	}
	return rows, nil
}
