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

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/kardianos/osext"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cafce25/tagsfs/cfg"
	"github.com/cafce25/tagsfs/internal/fs"
	"github.com/cafce25/tagsfs/internal/index"
	"github.com/cafce25/tagsfs/internal/logger"
	"github.com/cafce25/tagsfs/internal/metrics"
)

const (
	SuccessfulMountMessage         = "File system has been successfully mounted."
	UnsuccessfulMountMessagePrefix = "Error while mounting tagsfs"
)

func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for range signalChan {
			logger.Infof("Received SIGINT, attempting to unmount...")
			if err := fuse.Unmount(mountPoint); err != nil {
				logger.Errorf("Failed to unmount in response to SIGINT: %v", err)
			} else {
				logger.Infof("Successfully unmounted in response to SIGINT.")
				return
			}
		}
	}()
}

func logFormat(s string) logger.Format {
	if s == "json" {
		return logger.FormatJSON
	}
	return logger.FormatText
}

// mountWithConfig opens the index database, builds the FileSystem, and
// mounts it, returning a fuse.MountedFileSystem ready to be joined. Unlike
// gcsfuse's mountWithArgs, this FUSE binding's MountConfig carries only
// EnableVnodeCaching (an OS X kernel-cache knob); there is no FSName,
// Subtype, VolumeName, or per-mount Error/DebugLogger hook to set, so
// tagsfs's own structured logger (internal/logger) is the sole place
// mount-time diagnostics go.
func mountWithConfig(ctx context.Context, c *cfg.Config) (mfs *fuse.MountedFileSystem, err error) {
	idx, err := index.Open(ctx, c.Database)
	if err != nil {
		return nil, fmt.Errorf("index.Open: %w", err)
	}

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)
	fsys := fs.New(idx, c.Source, reg)
	server := fuseutil.NewFileSystemServer(fsys)

	logger.Infof("Mounting tagsfs at %q...", c.Mountpoint)
	mfs, err = fuse.Mount(c.Mountpoint, server, &fuse.MountConfig{})
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("fuse.Mount: %w", err)
	}
	return mfs, nil
}

// mountAction runs the full mount lifecycle: logger setup, optional
// daemonization, mounting, SIGINT handling, and waiting for unmount.
func mountAction(c *cfg.Config) error {
	logger.Init(logger.Config{
		Format:   logFormat(c.Logging.Format),
		Severity: c.Logging.Severity,
		FilePath: c.Logging.FilePath,
	})

	if !c.Foreground {
		path, err := osext.Executable()
		if err != nil {
			return fmt.Errorf("osext.Executable: %w", err)
		}

		args := append([]string{"--foreground"}, os.Args[1:]...)
		env := []string{fmt.Sprintf("PATH=%s", os.Getenv("PATH"))}

		if err := daemonize.Run(path, args, env, os.Stdout); err != nil {
			return fmt.Errorf("daemonize.Run: %w", err)
		}
		logger.Infof(SuccessfulMountMessage)
		return nil
	}

	ctx := context.Background()
	mfs, err := mountWithConfig(ctx, c)

	callDaemonizeSignalOutcome := func(err error) {
		if err2 := daemonize.SignalOutcome(err); err2 != nil {
			logger.Errorf("Failed to signal error to parent-process from daemon: %v", err2)
		}
	}

	if err != nil {
		logger.Errorf("%s: %v\n", UnsuccessfulMountMessagePrefix, err)
		callDaemonizeSignalOutcome(fmt.Errorf("%s: %w", UnsuccessfulMountMessagePrefix, err))
		return err
	}
	logger.Infof(SuccessfulMountMessage)
	callDaemonizeSignalOutcome(nil)

	registerSIGINTHandler(mfs.Dir())

	if err := mfs.Join(ctx); err != nil {
		return fmt.Errorf("MountedFileSystem.Join: %w", err)
	}
	return nil
}
