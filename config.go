// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrutil/v4"
	flags "github.com/jessevdk/go-flags"

	"github.com/tangleware/autopeerd/sampleconfig"
)

const (
	defaultConfigFilename   = "autopeerd.conf"
	defaultDataDirname      = "data"
	defaultLogLevel         = "info"
	defaultLogDirname       = "logs"
	defaultLogFilename      = "autopeerd.log"
	defaultListenPort       = "14626"
	defaultNetworkID        = 1
	defaultMaxActive        = 23
	defaultMaxReplacements  = 10
	defaultMaxInbound       = 4
	defaultMaxOutbound      = 4
	defaultSaltLifetime     = 2 * time.Hour
	defaultIdentityFilename = "identity.key"
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("autopeerd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the configuration options for autopeerd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion      bool          `short:"V" long:"version" description:"Display version information and exit"`
	HomeDir          string        `short:"A" long:"appdata" description:"Path to application home directory"`
	ConfigFile       string        `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir          string        `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir           string        `long:"logdir" description:"Directory to log output"`
	NoFileLogging    bool          `long:"nofilelogging" description:"Disable file logging"`
	DebugLevel       string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`
	Listen           string        `long:"listen" description:"UDP address to listen on for autopeering messages"`
	NetworkID        uint32        `long:"netid" description:"Identifier of the network the node participates in"`
	EntryNodes       []string      `long:"entrynode" description:"Entry node used to bootstrap peer discovery as base58pubkey@host:port -- may be specified multiple times"`
	GossipPort       uint16        `long:"gossipport" description:"TCP port advertised for the gossip service"`
	MaxActive        int           `long:"maxactive" description:"Maximum number of peers tracked in the active list"`
	MaxReplacements  int           `long:"maxreplacements" description:"Maximum number of peers tracked in the replacement list"`
	MaxInbound       int           `long:"maxinbound" description:"Maximum number of accepted inbound neighbor relations"`
	MaxOutbound      int           `long:"maxoutbound" description:"Maximum number of initiated outbound neighbor relations"`
	SaltLifetime     time.Duration `long:"saltlifetime" description:"Lifetime of the private and public salts"`
	DropOnSaltUpdate bool          `long:"droponsaltupdate" description:"Drop all neighbors when the salts are updated instead of rearranging them"`
	NoIPv6           bool          `long:"noipv6" description:"Never resolve entry node hostnames to IPv6 addresses"`
	IdentityFile     string        `long:"identityfile" description:"Path to the file that stores the node private key"`
	Profile          string        `long:"profile" description:"Enable HTTP profiling on given [addr:]port -- NOTE port must be between 1024 and 65535"`
}

// cleanAndExpandPath expands environment variables and leading ~ in the passed
// path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	path = os.ExpandEnv(path)

	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser
	// to otheruser's home directory.  On Windows, both forward and backward
	// slashes can be used.
	path = path[1:]
	var pathSeparators string
	if runtime.GOOS == "windows" {
		pathSeparators = string(os.PathSeparator) + "/"
	} else {
		pathSeparators = string(os.PathSeparator)
	}
	userName := ""
	if i := strings.IndexAny(path, pathSeparators); i != -1 {
		userName = path[:i]
		path = path[i:]
	}

	homeDir := ""
	var errHome error
	if userName == "" {
		homeDir, errHome = os.UserHomeDir()
	}
	if userName != "" || errHome != nil {
		homeDir = filepath.Join(defaultHomeDir, "..", "..", userName)
	}

	return filepath.Join(homeDir, path)
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// validEntryNode returns an error when the passed entry node specification is
// not of the form base58pubkey@host:port.  Name resolution is deliberately
// deferred until the server dials out so that a temporarily unresolvable
// entry node does not prevent startup.
func validEntryNode(node string) error {
	key, addr, found := strings.Cut(node, "@")
	if !found || key == "" {
		return fmt.Errorf("entry node %q is missing the public key "+
			"component", node)
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("entry node %q has a malformed address: %w",
			node, err)
	}
	if portStr == "" {
		return fmt.Errorf("entry node %q is missing the port", node)
	}
	return nil
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in daemon functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take precedence.
func loadConfig(appName string) (*config, error) {
	// Default config.
	cfg := config{
		HomeDir:         defaultHomeDir,
		ConfigFile:      defaultConfigFile,
		DataDir:         defaultDataDir,
		LogDir:          defaultLogDir,
		DebugLevel:      defaultLogLevel,
		Listen:          net.JoinHostPort("", defaultListenPort),
		NetworkID:       defaultNetworkID,
		MaxActive:       defaultMaxActive,
		MaxReplacements: defaultMaxReplacements,
		MaxInbound:      defaultMaxInbound,
		MaxOutbound:     defaultMaxOutbound,
		SaltLifetime:    defaultSaltLifetime,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			version(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// Update the home directory if specified.  Since the home directory is
	// updated, other variables need to be updated to reflect the new
	// location.
	if preCfg.HomeDir != defaultHomeDir {
		cfg.HomeDir = cleanAndExpandPath(preCfg.HomeDir)

		if preCfg.ConfigFile == defaultConfigFile {
			cfg.ConfigFile = filepath.Join(cfg.HomeDir,
				defaultConfigFilename)
		} else {
			cfg.ConfigFile = preCfg.ConfigFile
		}
		if preCfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		} else {
			cfg.DataDir = preCfg.DataDir
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		} else {
			cfg.LogDir = preCfg.LogDir
		}
	}

	// Create the home directory if it doesn't already exist.
	err = os.MkdirAll(cfg.HomeDir, 0700)
	if err != nil {
		err := fmt.Errorf("failed to create home directory: %w", err)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	// Create the commented sample config when the default config file
	// location is in use and no config file exists there yet.
	cfg.ConfigFile = cleanAndExpandPath(cfg.ConfigFile)
	if preCfg.ConfigFile == defaultConfigFile {
		if _, err := os.Stat(cfg.ConfigFile); os.IsNotExist(err) {
			err := os.WriteFile(cfg.ConfigFile,
				[]byte(sampleconfig.Autopeerd()), 0600)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating a "+
					"default config file: %v\n", err)
			}
		}
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(cfg.ConfigFile)
	if err != nil {
		var e *os.PathError
		if !errors.As(err, &e) {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n",
				err)
			return nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		return nil, err
	}

	// Clean and expand all file and directory paths.
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	if cfg.IdentityFile == "" {
		cfg.IdentityFile = filepath.Join(cfg.DataDir,
			defaultIdentityFilename)
	}
	cfg.IdentityFile = cleanAndExpandPath(cfg.IdentityFile)

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	if !cfg.NoFileLogging {
		initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%w -- The valid debug levels are "+
			"{trace, debug, info, warn, error, critical}", err)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	// Add the default port to the listen address if needed and ensure it
	// parses as a valid address.
	cfg.Listen = normalizeAddress(cfg.Listen, defaultListenPort)
	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		err := fmt.Errorf("invalid listen address %q: %w", cfg.Listen,
			err)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	// Validate list and neighborhood bounds.
	if cfg.MaxActive < 1 {
		err := fmt.Errorf("maxactive must be at least 1 -- got %d",
			cfg.MaxActive)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}
	if cfg.MaxReplacements < 0 {
		err := fmt.Errorf("maxreplacements may not be negative -- got "+
			"%d", cfg.MaxReplacements)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}
	if cfg.MaxInbound < 0 || cfg.MaxOutbound < 0 {
		err := fmt.Errorf("neighborhood sizes may not be negative -- "+
			"got inbound %d, outbound %d", cfg.MaxInbound,
			cfg.MaxOutbound)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}
	if cfg.SaltLifetime < time.Minute {
		err := fmt.Errorf("saltlifetime must be at least one minute -- "+
			"got %v", cfg.SaltLifetime)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	// Validate entry node syntax early so typos are reported at startup
	// rather than when bootstrapping silently fails.
	for _, node := range cfg.EntryNodes {
		if err := validEntryNode(node); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return nil, err
		}
	}

	// Validate profile port number.
	if cfg.Profile != "" {
		profileAddr := portToLocalHostAddr(cfg.Profile)
		if err := validateProfileAddr(profileAddr); err != nil {
			err := fmt.Errorf("invalid profile: %w", err)
			fmt.Fprintln(os.Stderr, err)
			return nil, err
		}
		cfg.Profile = profileAddr
	}

	return &cfg, nil
}
