package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/cxlproject/go-fwctl/internal/cxl"
	"github.com/cxlproject/go-fwctl/internal/feature"
	"github.com/cxlproject/go-fwctl/internal/mbox"
)

// Feature describes the single feature the run expects the device to
// expose, and the data values driven through it.
type Feature struct {
	UUID         string `toml:"uuid"`
	GetSize      uint16 `toml:"get_size"`
	SetSize      uint16 `toml:"set_size"`
	Effects      uint16 `toml:"effects"`
	InitialValue uint32 `toml:"initial_value"`
	UpdateValue  uint32 `toml:"update_value"`
}

// Config is the full run configuration.
type Config struct {
	Provider   string  `toml:"provider"`
	SysfsRoot  string  `toml:"sysfs_root"`
	DevCharDir string  `toml:"dev_char_dir"`
	Feature    Feature `toml:"feature"`
}

// Default is the compiled-in run shape: the cxl_test mock bus and its
// single all-0xFF test feature.
func Default() Config {
	return Config{
		Provider:   "cxl_test",
		SysfsRoot:  cxl.DefaultRoot,
		DevCharDir: "/dev/char",
		Feature: Feature{
			UUID:         "ffffffff-ffff-ffff-ffff-ffffffffffff",
			GetSize:      mbox.FeatureDataSize,
			SetSize:      mbox.FeatureDataSize,
			Effects:      mbox.EffectDataChange | mbox.EffectVendor,
			InitialValue: 0xdeadbeef,
			UpdateValue:  0xabcdabcd,
		},
	}
}

// Load reads a TOML configuration over the defaults. An empty path means
// pure defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Provider) == "" {
		return fmt.Errorf("config missing provider")
	}
	if strings.TrimSpace(cfg.SysfsRoot) == "" {
		return fmt.Errorf("config missing sysfs_root")
	}
	if _, err := uuid.Parse(cfg.Feature.UUID); err != nil {
		return fmt.Errorf("feature uuid invalid: %w", err)
	}
	if cfg.Feature.GetSize == 0 || cfg.Feature.SetSize == 0 {
		return fmt.Errorf("feature payload sizes must be non-zero")
	}
	if cfg.Feature.InitialValue == cfg.Feature.UpdateValue {
		return fmt.Errorf("initial and update values must differ")
	}
	return nil
}

// FeatureShape converts the configured expectations into the shape the
// discovery validation consumes.
func (c Config) FeatureShape() (feature.Shape, error) {
	id, err := uuid.Parse(c.Feature.UUID)
	if err != nil {
		return feature.Shape{}, fmt.Errorf("feature uuid invalid: %w", err)
	}
	return feature.Shape{
		ID:      id,
		GetSize: c.Feature.GetSize,
		SetSize: c.Feature.SetSize,
		Effects: c.Feature.Effects,
	}, nil
}
