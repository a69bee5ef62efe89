// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cfg binds tagsfs's command-line flags and config-file overlay to
// a single Config struct, following the flagSet/viper.BindPFlag wiring
// shape of gcsfuse's generated cfg package.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every mount-time setting, populated from flags and
// optionally overlaid by a YAML config file (see cmd.initConfig).
type Config struct {
	// Source is the flat backing directory holding real file bytes.
	Source string `yaml:"source" mapstructure:"source"`

	// Database is the path to the sqlite Index file.
	Database string `yaml:"database" mapstructure:"database"`

	// Mountpoint is where the tag filesystem is mounted.
	Mountpoint string `yaml:"mountpoint" mapstructure:"mountpoint"`

	// Foreground keeps the process attached to the terminal instead of
	// daemonizing via jacobsa/daemonize.
	Foreground bool `yaml:"foreground" mapstructure:"foreground"`

	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Debug   DebugConfig   `yaml:"debug" mapstructure:"debug"`
}

// LoggingConfig controls internal/logger.Init. The mapstructure tags match
// BindFlags's dotted viper keys exactly: mapstructure's default field
// matcher folds case but not hyphens, so "logging.file-path" would
// otherwise miss the FilePath field.
type LoggingConfig struct {
	FilePath string `yaml:"file-path" mapstructure:"file-path"`
	Format   string `yaml:"format" mapstructure:"format"`
	Severity string `yaml:"severity" mapstructure:"severity"`
}

// DebugConfig holds internal-invariant debugging toggles.
// ExitOnInvariantViolation is parsed and bound but no code reads it, so
// setting it has no effect.
type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation" mapstructure:"exit-on-invariant-violation"`
}

// BindFlags registers tagsfs's flags on flagSet and binds each to its
// viper key, so that Config can later be populated with
// viper.Unmarshal regardless of whether the value came from a flag or a
// config file. Environment variables are not consulted.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.BoolP("foreground", "f", false, "Stay attached to the terminal instead of daemonizing.")
	if err = viper.BindPFlag("foreground", flagSet.Lookup("foreground")); err != nil {
		return err
	}

	flagSet.String("log-file", "", "Write logs to this file instead of stderr.")
	if err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.String("log-format", "text", "Log record format: text or json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "v", "INFO", "Minimum log severity: TRACE, DEBUG, INFO, WARNING, or ERROR.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.Bool("exit-on-invariant-violation", false, "Accepted for configuration compatibility; has no effect.")
	if err = viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("exit-on-invariant-violation")); err != nil {
		return err
	}

	return nil
}
