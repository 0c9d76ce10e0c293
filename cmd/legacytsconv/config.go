package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"dfi/tsconv/internal/tslog"
)

// metricsConfig mirrors the teacher's metricsConfig.go lifecycle
// (SetDefaults/UpdateCommandLine/Validate), trimmed to the one address
// this binary needs.
type metricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

func (cfg *metricsConfig) SetDefaults() {
	if cfg == nil {
		return
	}
}

func (cfg *metricsConfig) UpdateCommandLine(givenFlags []*flag.Flag) {
	if cfg == nil {
		return
	}
	for _, f := range givenFlags {
		switch f.Name {
		case "metrics.enabled":
			cfg.Enabled = *clpMetricsEnabled
		case "metrics.address":
			cfg.Address = *clpMetricsAddress
		}
	}
}

func (cfg *metricsConfig) Validate() error {
	if cfg == nil {
		return errors.New("nil metrics config object")
	}
	if cfg.Enabled && cfg.Address == "" {
		cfg.Enabled = false
	}
	return nil
}

// ioConfig names the input token and the output signature location.
type ioConfig struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

func (cfg *ioConfig) SetDefaults() {
	if cfg == nil {
		return
	}
}

func (cfg *ioConfig) UpdateCommandLine(givenFlags []*flag.Flag) {
	if cfg == nil {
		return
	}
	for _, f := range givenFlags {
		switch f.Name {
		case "in":
			cfg.Input = *clpInputPath
		case "out":
			cfg.Output = *clpOutputPath
		}
	}
}

func (cfg *ioConfig) Validate() error {
	if cfg == nil {
		return errors.New("nil io config object")
	}
	return nil
}

// appConfig is the CLI's YAML-file-plus-flags configuration, following the
// same buildConfig shape the teacher uses: decode the file (if any) with
// unknown fields rejected, fill defaults, then let any flag the caller
// actually passed override the decoded value.
type appConfig struct {
	Log     tslog.Config  `yaml:"log"`
	Metrics metricsConfig `yaml:"metrics"`
	IO      ioConfig      `yaml:"io"`
}

func buildConfig() (*appConfig, error) {
	var out appConfig

	if clpConfigPath != nil && *clpConfigPath != "" {
		fn := filepath.Clean(*clpConfigPath)
		encoded, readErr := os.ReadFile(fn)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read config file: [%s], [%w]", fn, readErr)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(encoded))
		decoder.KnownFields(true)
		if decodeErr := decoder.Decode(&out); decodeErr != nil {
			return nil, fmt.Errorf("failed to parse config file: [%s], [%w]", fn, decodeErr)
		}
	}

	out.Log.SetDefaults()
	out.Metrics.SetDefaults()
	out.IO.SetDefaults()

	var givenFlags []*flag.Flag
	flag.CommandLine.Visit(func(f *flag.Flag) {
		givenFlags = append(givenFlags, f)
	})

	out.Log.UpdateCommandLine(givenFlags, clpLogEnabled, clpLogConsole, clpLogVerbose, clpLogFileName)
	out.Metrics.UpdateCommandLine(givenFlags)
	out.IO.UpdateCommandLine(givenFlags)

	if err := out.Log.Validate(); err != nil {
		return nil, err
	}
	if err := out.Metrics.Validate(); err != nil {
		return nil, err
	}
	if err := out.IO.Validate(); err != nil {
		return nil, err
	}

	return &out, nil
}
