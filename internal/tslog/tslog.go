// Package tslog wires up the CLI's zerolog logger, adapted from the
// teacher's logConfig.go: a config struct with the same
// SetDefaults/UpdateCommandLine/Validate lifecycle, console and/or file
// sinks, and zerolog.Nop() when logging is disabled.
package tslog

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Config controls the CLI's logger. The core conversion packages
// (der/hashchain/tlv/assemble/hashalgo) never touch this — logging is a
// boundary concern of cmd/legacytsconv and convert.Options.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Console  bool   `yaml:"console"`
	FileName string `yaml:"filename"`
	Verbose  bool   `yaml:"verbose"`
}

// SetDefaults fills in non-critical fields left unset by the config file.
func (cfg *Config) SetDefaults() {
	if cfg == nil {
		return
	}
}

// UpdateCommandLine overrides cfg's fields with any log.* flags the
// caller actually passed on the command line.
func (cfg *Config) UpdateCommandLine(givenFlags []*flag.Flag, enabled, console, verbose *bool, fileName *string) {
	if cfg == nil {
		return
	}
	for _, f := range givenFlags {
		switch f.Name {
		case "log.enabled":
			cfg.Enabled = *enabled
		case "log.console":
			cfg.Console = *console
		case "log.verbose":
			cfg.Verbose = *verbose
		case "log.filename":
			cfg.FileName = *fileName
		}
	}
}

// Validate disables logging outright if no sink was configured.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.New("nil logger config object")
	}
	if cfg.Enabled && !cfg.Console && cfg.FileName == "" {
		cfg.Enabled = false
	}
	return nil
}

// New builds a logger per cfg. The returned close function must be
// called once the caller is done logging (it closes the log file, if
// one was configured).
func New(cfg *Config) (*zerolog.Logger, func(), error) {
	closeFunc := func() {}
	if cfg == nil {
		return nil, closeFunc, errors.New("nil logger config object")
	}

	out := zerolog.Nop()
	if cfg.Enabled {
		var writers []io.Writer
		if cfg.Console {
			writers = append(writers, os.Stdout)
		}
		if cfg.FileName != "" {
			logFile, err := os.OpenFile(filepath.Clean(cfg.FileName), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
			if err != nil {
				return nil, closeFunc, fmt.Errorf("failed to open log file: [%w]", err)
			}
			closeFunc = func() {
				_ = logFile.Close() //nolint:errcheck
			}
			writers = append(writers, zerolog.SyncWriter(logFile))
		}
		if len(writers) > 0 {
			out = zerolog.New(io.MultiWriter(writers...))
		}
		if !cfg.Verbose {
			out = out.Level(zerolog.InfoLevel)
		}
	}

	out = out.With().Timestamp().Logger()
	return &out, closeFunc, nil
}
