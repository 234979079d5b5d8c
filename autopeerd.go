// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"runtime"

	"github.com/tangleware/autopeerd/identity"
)

// autopeerdMain is the real main function for autopeerd.  It is necessary to
// work around the fact that deferred functions do not run when os.Exit() is
// called.
func autopeerdMain() error {
	// Initialize the shutdown context that is canceled when a shutdown
	// signal is received.
	ctx := shutdownListener()

	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	cfg, err := loadConfig("autopeerd")
	if err != nil {
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Show version at startup.
	apdLog.Infof("Version %s (Go version %s %s/%s)", version(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)

	// Enable http profiling server if requested.
	if cfg.Profile != "" {
		var profiler profileServer
		if err := profiler.Start(cfg.Profile); err != nil {
			apdLog.Errorf("Unable to start profiler: %v", err)
			return err
		}
		defer profiler.Stop()
	}

	// Load the persisted node identity, creating a fresh one on the first
	// run.
	local, err := identity.LoadOrCreate(cfg.IdentityFile)
	if err != nil {
		apdLog.Errorf("Unable to load node identity: %v", err)
		return err
	}

	// Return now if an interrupt signal was triggered during setup.
	if shutdownRequested(ctx) {
		return nil
	}

	// Create and run the server.  Run blocks until the shutdown context
	// is canceled and the shutdown is complete.
	svr, err := newServer(cfg, local)
	if err != nil {
		apdLog.Errorf("Unable to start server: %v", err)
		return err
	}
	svr.Run(ctx)

	return nil
}

func main() {
	// Work around defer not working after os.Exit()
	if err := autopeerdMain(); err != nil {
		os.Exit(1)
	}
}
