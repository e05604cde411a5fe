package scenario_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/cxlproject/go-fwctl/internal/config"
	"github.com/cxlproject/go-fwctl/internal/feature"
	"github.com/cxlproject/go-fwctl/internal/mock"
	"github.com/cxlproject/go-fwctl/internal/scenario"
	"github.com/cxlproject/go-fwctl/internal/testutil/testlog"
)

// fakeSysfs lays out one cxl_test bus with a single memdev. fwctlDev is
// the contents of the fwctl node's dev attribute; empty means no node.
func fakeSysfs(t *testing.T, fwctlDev string) string {
	t.Helper()
	base := t.TempDir()

	rootDev := filepath.Join(base, "devices/platform/cxl_acpi.0/root0")
	epDev := filepath.Join(rootDev, "port1/endpoint2")
	memDev := filepath.Join(base, "devices/platform/cxl_mem.0/mem0")
	busDir := filepath.Join(base, "bus/cxl/devices")
	for _, dir := range []string{epDev, memDev, busDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	require.NoError(t, os.Symlink(rootDev, filepath.Join(busDir, "root0")))
	require.NoError(t, os.Symlink(epDev, filepath.Join(busDir, "endpoint2")))
	require.NoError(t, os.Symlink(memDev, filepath.Join(busDir, "mem0")))
	require.NoError(t, os.Symlink(filepath.Join(base, "devices/platform/cxl_acpi.0"), filepath.Join(rootDev, "uport")))
	require.NoError(t, os.Symlink(memDev, filepath.Join(epDev, "uport")))

	if fwctlDev != "" {
		fwctlDir := filepath.Join(memDev, "fwctl/fwctl0")
		require.NoError(t, os.MkdirAll(fwctlDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(fwctlDir, "dev"), []byte(fwctlDev+"\n"), 0o644))
	}
	return busDir
}

// mockHandle adapts a mock device to the scenario's closable handle.
type mockHandle struct {
	*mock.Device
	closes *int
}

func (h mockHandle) Close() error {
	*h.closes++
	return nil
}

func testConfig(t *testing.T, sysfsRoot string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SysfsRoot = sysfsRoot
	cfg.DevCharDir = "/nonexistent/devchar"
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func TestRunPassesEndToEnd(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(t, fakeSysfs(t, "241:0"))

	dev := mock.NewDevice()
	closes := 0
	var dialed string
	runner := scenario.New(cfg, zerolog.Nop())
	runner.Dial = func(path string) (scenario.Device, error) {
		dialed = path
		return mockHandle{Device: dev, closes: &closes}, nil
	}

	outcome, err := runner.Run()
	require.NoError(t, err)
	require.Equal(t, scenario.Passed, outcome)
	require.Equal(t, "/nonexistent/devchar/241:0", dialed)
	require.Equal(t, 1, closes)
	require.EqualValues(t, 0xabcdabcd, dev.Value())
}

func TestRunSkipsWithoutControlNode(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(t, fakeSysfs(t, ""))

	runner := scenario.New(cfg, zerolog.Nop())
	dialed := false
	runner.Dial = func(string) (scenario.Device, error) {
		dialed = true
		return nil, nil
	}

	outcome, err := runner.Run()
	require.Equal(t, scenario.Skipped, outcome)
	require.ErrorIs(t, err, scenario.ErrNotApplicable)
	require.False(t, dialed, "no control node must mean no open attempt")
}

func TestRunSkipsZeroNodePair(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(t, fakeSysfs(t, "0:0"))

	runner := scenario.New(cfg, zerolog.Nop())
	outcome, err := runner.Run()
	require.Equal(t, scenario.Skipped, outcome)
	require.ErrorIs(t, err, scenario.ErrNotApplicable)
}

func TestRunSkipsWhenDeviceAbsent(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(t, fakeSysfs(t, "241:0"))

	runner := scenario.New(cfg, zerolog.Nop())
	runner.Dial = func(string) (scenario.Device, error) {
		return nil, unix.ENODEV
	}

	outcome, err := runner.Run()
	require.Equal(t, scenario.Skipped, outcome)
	require.ErrorIs(t, err, unix.ENODEV)
}

func TestRunFailsWithoutBus(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(t, fakeSysfs(t, "241:0"))
	cfg.Provider = "ACPI.CXL"

	runner := scenario.New(cfg, zerolog.Nop())
	outcome, err := runner.Run()
	require.Equal(t, scenario.Failed, outcome)
	require.Error(t, err)
}

func TestRunFailsOnShapeMismatch(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(t, fakeSysfs(t, "241:0"))
	cfg.Feature.Effects = 1 << 4

	dev := mock.NewDevice()
	closes := 0
	runner := scenario.New(cfg, zerolog.Nop())
	runner.Dial = func(string) (scenario.Device, error) {
		return mockHandle{Device: dev, closes: &closes}, nil
	}

	outcome, err := runner.Run()
	require.Equal(t, scenario.Failed, outcome)
	require.ErrorIs(t, err, feature.ErrShape)
	require.Equal(t, 1, closes, "handle must be closed on failure paths too")
}

func TestRunFailsOnTransportError(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig(t, fakeSysfs(t, "241:0"))

	dev := mock.NewDevice()
	dev.Err = unix.EIO
	closes := 0
	runner := scenario.New(cfg, zerolog.Nop())
	runner.Dial = func(string) (scenario.Device, error) {
		return mockHandle{Device: dev, closes: &closes}, nil
	}

	outcome, err := runner.Run()
	require.Equal(t, scenario.Failed, outcome)
	require.ErrorIs(t, err, unix.EIO)
	require.Equal(t, 1, dev.Exchanges, "first failure must stop the sequence")
	require.Equal(t, 1, closes)
}
