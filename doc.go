// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
autopeerd is a standalone autopeering daemon written in Go.

It discovers other nodes on the same network via a request-response discovery
protocol over UDP, verifies that they are alive and reachable, and maintains a
small neighborhood of them selected by a salted distance metric so the overlay
rearranges itself over time without any central coordination.

The default options are sane for most users.  This means autopeerd will work
'out of the box' for most users.  However, there are also a wide variety of
flags that can be used to control it.

The following section provides a usage overview which enumerates the flags.  An
interesting point to note is that the long form of all of these options
(except -C) can be specified in a configuration file that is automatically
parsed when autopeerd starts up.  By default, the configuration file is located
at ~/.autopeerd/autopeerd.conf on POSIX-style operating systems and
%LOCALAPPDATA%\autopeerd\autopeerd.conf on Windows.  The -C (--configfile)
flag, as shown below, can be used to override this location.

Usage:

	autopeerd [OPTIONS]

Application Options:

	-V, --version           Display version information and exit
	-A, --appdata=          Path to application home directory
	-C, --configfile=       Path to configuration file
	-b, --datadir=          Directory to store data
	    --logdir=           Directory to log output
	    --nofilelogging     Disable file logging
	-d, --debuglevel=       Logging level for all subsystems {trace, debug,
	                        info, warn, error, critical} -- You may also
	                        specify <subsystem>=<level>,<subsystem2>=<level>,
	                        ... to set the log level for individual subsystems
	    --listen=           UDP address to listen on for autopeering messages
	    --netid=            Identifier of the network the node participates in
	    --entrynode=        Entry node used to bootstrap peer discovery as
	                        base58pubkey@host:port -- may be specified
	                        multiple times
	    --gossipport=       TCP port advertised for the gossip service
	    --maxactive=        Maximum number of peers tracked in the active list
	    --maxreplacements=  Maximum number of peers tracked in the replacement
	                        list
	    --maxinbound=       Maximum number of accepted inbound neighbor
	                        relations
	    --maxoutbound=      Maximum number of initiated outbound neighbor
	                        relations
	    --saltlifetime=     Lifetime of the private and public salts
	    --droponsaltupdate  Drop all neighbors when the salts are updated
	                        instead of rearranging them
	    --noipv6            Never resolve entry node hostnames to IPv6
	                        addresses
	    --identityfile=     Path to the file that stores the node private key
	    --profile=          Enable HTTP profiling on given [addr:]port -- NOTE
	                        port must be between 1024 and 65535
*/
package main
