// Package scenario sequences one full validation run: resolve the bus,
// open the device's control node, then discover, read, and write the test
// feature. The state machine is linear with no retries; the first failure
// is terminal.
package scenario

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/cxlproject/go-fwctl/internal/config"
	"github.com/cxlproject/go-fwctl/internal/cxl"
	"github.com/cxlproject/go-fwctl/internal/feature"
	"github.com/cxlproject/go-fwctl/internal/fwctl"
)

// Outcome classifies a complete run. Skipped means the environment has no
// testable device; it is distinct from both success and failure so the
// harness can report it as not applicable.
type Outcome int

const (
	Passed Outcome = iota
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

var ErrNotApplicable = errors.New("scenario: device exposes no control-plane node")

// Device is the control-plane handle a run drives.
type Device interface {
	fwctl.Exchanger
	Close() error
}

// Runner executes the scenario against one provider bus.
type Runner struct {
	Config config.Config
	Log    zerolog.Logger

	// Dial opens the control node at a character-device path. Tests point
	// it at an in-memory device.
	Dial func(path string) (Device, error)
}

func New(cfg config.Config, log zerolog.Logger) *Runner {
	return &Runner{
		Config: cfg,
		Log:    log,
		Dial: func(path string) (Device, error) {
			return fwctl.Open(path)
		},
	}
}

// Run drives the full sequence: discover, get the expected initial value,
// set the update value with its embedded read-back. The device handle is
// closed exactly once no matter which step fails.
func (r *Runner) Run() (Outcome, error) {
	cfg := r.Config
	shape, err := cfg.FeatureShape()
	if err != nil {
		return Failed, err
	}

	bus, err := cxl.ResolveBusByProvider(cfg.SysfsRoot, cfg.Provider)
	if err != nil {
		return Failed, err
	}
	r.Log.Debug().Str("bus", bus.Name).Str("provider", bus.Provider).Msg("resolved bus")

	memdevs, err := cxl.Memdevs(cfg.SysfsRoot, bus)
	if err != nil {
		return Failed, err
	}
	if len(memdevs) == 0 {
		r.Log.Warn().Str("bus", bus.Name).Msg("no memdevs on bus, nothing to test")
		return Passed, nil
	}
	md := memdevs[0]

	node, err := cxl.FwctlNode(md)
	if err != nil {
		return Failed, err
	}
	if node.IsZero() {
		return Skipped, fmt.Errorf("%w: %s", ErrNotApplicable, md.Name)
	}

	path := node.CharDevPath(cfg.DevCharDir)
	dev, err := r.Dial(path)
	if err != nil {
		if errors.Is(err, unix.ENODEV) || errors.Is(err, unix.ENOENT) {
			return Skipped, err
		}
		return Failed, err
	}
	defer dev.Close()
	r.Log.Info().Str("memdev", md.Name).Str("node", path).Msg("opened control node")

	desc, err := feature.Discover(dev, shape)
	if err != nil {
		return Failed, fmt.Errorf("discover: %w", err)
	}
	r.Log.Info().
		Str("feature", desc.ID.String()).
		Uint16("get_size", desc.GetSize).
		Uint16("set_size", desc.SetSize).
		Msg("discovered test feature")

	if err := feature.Get(dev, desc, cfg.Feature.InitialValue); err != nil {
		return Failed, fmt.Errorf("get: %w", err)
	}
	r.Log.Info().Uint32("value", cfg.Feature.InitialValue).Msg("initial value verified")

	if err := feature.Set(dev, desc, cfg.Feature.UpdateValue); err != nil {
		return Failed, fmt.Errorf("set: %w", err)
	}
	r.Log.Info().Uint32("value", cfg.Feature.UpdateValue).Msg("update written and read back")

	return Passed, nil
}
