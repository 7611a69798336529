// config.go: Suite configuration loaded from YAML with environment overrides.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/agilira/go-errors"
	"gopkg.in/yaml.v3"
)

// Isolation modes.
const (
	IsolationInProcess = "inprocess"
	IsolationProcess   = "process"
)

// SuiteConfig selects benchmarks and how to run them.
type SuiteConfig struct {
	Benchmarks []string  `yaml:"benchmarks"` // Name patterns; empty runs everything
	Run        RunConfig `yaml:"run"`
	Output     string    `yaml:"output"`     // table, json or prometheus
	Isolation  string    `yaml:"isolation"`  // inprocess or process
	Confidence float64   `yaml:"confidence"` // Confidence level of reported intervals
}

// DefaultSuiteConfig runs everything with the reference run configuration,
// in process, printing a table.
func DefaultSuiteConfig() SuiteConfig {
	return SuiteConfig{
		Run:        ReferenceRunConfig(),
		Output:     OutputTable,
		Isolation:  IsolationInProcess,
		Confidence: DefaultConfidence,
	}
}

// LoadSuiteConfig starts from DefaultSuiteConfig, applies the YAML file at path
// (if path is not empty) and then the CRYPTOBENCH_* environment variables.
func LoadSuiteConfig(path string) (SuiteConfig, error) {
	cfg := DefaultSuiteConfig()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path is supplied by the operator
		if err != nil {
			return cfg, wrapError(ErrInvalidConfig, err, ErrCodeInvalidConfig, fmt.Sprintf("failed to read %s", path))
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, wrapError(ErrInvalidConfig, err, ErrCodeInvalidConfig, fmt.Sprintf("failed to parse %s", path))
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *SuiteConfig) error {
	var errs []error
	envInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, goerrors.Wrap(err, ErrCodeInvalidConfig, fmt.Sprintf("%s must be an integer", name)))
				return
			}
			*dst = i
		}
	}

	envInt("CRYPTOBENCH_FORKS", &cfg.Run.Forks)
	envInt("CRYPTOBENCH_THREADS", &cfg.Run.Threads)
	envInt("CRYPTOBENCH_WARMUP", &cfg.Run.Warmup)
	envInt("CRYPTOBENCH_MEASUREMENT", &cfg.Run.Measurement)
	if v := os.Getenv("CRYPTOBENCH_FORK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, goerrors.Wrap(err, ErrCodeInvalidConfig, "CRYPTOBENCH_FORK_TIMEOUT must be a duration"))
		} else {
			cfg.Run.ForkTimeout = d
		}
	}
	if v := os.Getenv("CRYPTOBENCH_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("CRYPTOBENCH_ISOLATION"); v != "" {
		cfg.Isolation = v
	}
	if v := os.Getenv("CRYPTOBENCH_INCLUDE"); v != "" {
		cfg.Benchmarks = strings.Split(v, ",")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate checks the run configuration and the output and isolation modes.
func (c SuiteConfig) Validate() error {
	if err := c.Run.Validate(); err != nil {
		return err
	}
	switch c.Output {
	case OutputTable, OutputJSON, OutputPrometheus:
	default:
		return newError(ErrInvalidConfig, ErrCodeInvalidConfig, fmt.Sprintf("unknown output mode %q", c.Output))
	}
	switch c.Isolation {
	case IsolationInProcess, IsolationProcess:
	default:
		return newError(ErrInvalidConfig, ErrCodeInvalidConfig, fmt.Sprintf("unknown isolation mode %q", c.Isolation))
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return newError(ErrInvalidConfig, ErrCodeInvalidConfig, fmt.Sprintf("confidence must be in (0, 1), got %g", c.Confidence))
	}
	return nil
}
