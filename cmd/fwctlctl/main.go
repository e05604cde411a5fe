// Command fwctlctl validates the firmware-control RPC path of a CXL
// memory expander. It locates a memory device on the named provider bus,
// opens its control-plane character node, and round-trips feature
// discovery, a read of the expected payload, and a write with mandatory
// read-back verification.
//
// Exit codes follow the harness convention: 0 pass, 77 not applicable
// (no testable device), anything else failure.
package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/cxlproject/go-fwctl/internal/config"
	"github.com/cxlproject/go-fwctl/internal/logging"
	"github.com/cxlproject/go-fwctl/internal/scenario"
)

const exitSkip = 77

func main() {
	var (
		configPath = flag.String("config", "", "path to TOML run configuration")
		provider   = flag.String("provider", "", "override the bus provider name")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		os.Setenv(logging.EnvLogLevel, "debug")
	}
	logging.ConfigureRuntime()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	if *provider != "" {
		cfg.Provider = *provider
	}

	runner := scenario.New(cfg, log.Logger)
	outcome, err := runner.Run()
	switch outcome {
	case scenario.Passed:
		log.Info().Str("provider", cfg.Provider).Msg("feature rpc round-trip passed")
	case scenario.Skipped:
		log.Warn().Err(err).Msg("not applicable on this system")
		os.Exit(exitSkip)
	default:
		log.Error().Err(err).Msg("feature rpc round-trip failed")
		os.Exit(1)
	}
}
