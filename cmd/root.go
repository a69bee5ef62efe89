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

// A tag-based FUSE file system.
//
// Usage:
//
//	tagsfs [flags] source database mount_point
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cafce25/tagsfs/cfg"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	MountConfig   cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "tagsfs [flags] source database mount_point",
	Short: "Mount a tag-indexed view of a directory as a local file system",
	Long: `tagsfs is a FUSE adapter that presents the flat contents of a source
          directory as a tree of tag directories: entering a subdirectory
          conjoins a tag, and the files listed are those whose tag set is a
          superset of the directory's path.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if err := validateConfig(); err != nil {
			return err
		}
		source, database, mountPoint, err := populateArgs(args)
		if err != nil {
			return err
		}
		MountConfig.Source = source
		MountConfig.Database = database
		MountConfig.Mountpoint = mountPoint
		return mountAction(&MountConfig)
	},
}

func populateArgs(args []string) (source, database, mountPoint string, err error) {
	if len(args) != 3 {
		return "", "", "", fmt.Errorf(
			"%s takes exactly three arguments: source database mount_point. Run `%s --help` for more info.",
			filepath.Base(os.Args[0]), filepath.Base(os.Args[0]))
	}
	source, database, mountPoint = args[0], args[1], args[2]

	// Canonicalize the mount point, making it absolute. This matters when
	// daemonizing below, since the daemon changes its working directory
	// before running this code again.
	mountPoint, err = resolvePath(mountPoint)
	if err != nil {
		return "", "", "", fmt.Errorf("canonicalizing mount point: %w", err)
	}
	source, err = resolvePath(source)
	if err != nil {
		return "", "", "", fmt.Errorf("canonicalizing source directory: %w", err)
	}
	return source, database, mountPoint, nil
}

// resolvePath makes path absolute relative to the current working
// directory, without requiring it to already exist.
func resolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, path), nil
}

func validateConfig() error {
	if MountConfig.Logging.Format != "" && MountConfig.Logging.Format != "text" && MountConfig.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", MountConfig.Logging.Format)
	}
	return nil
}

// Execute runs the root command, printing any error to stderr and exiting
// with status 1 on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to the config-file")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&MountConfig)
		return
	}

	resolved, err := resolvePath(cfgFile)
	if err != nil {
		configFileErr = fmt.Errorf("error while resolving config file path: %w", err)
		return
	}
	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("error while reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&MountConfig)
}
