// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"testing"
)

// TestNormalizeAddress ensures the default port is only appended when the
// address does not already carry one.
func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want string
	}{{
		name: "host without port",
		addr: "10.0.0.1",
		want: "10.0.0.1:14626",
	}, {
		name: "host with port",
		addr: "10.0.0.1:24626",
		want: "10.0.0.1:24626",
	}, {
		name: "hostname without port",
		addr: "entry.example.org",
		want: "entry.example.org:14626",
	}, {
		name: "ipv6 with port",
		addr: "[::1]:14626",
		want: "[::1]:14626",
	}, {
		name: "empty host",
		addr: "",
		want: ":14626",
	}}

	for _, test := range tests {
		got := normalizeAddress(test.addr, defaultListenPort)
		if got != test.want {
			t.Errorf("%q: unexpected address -- got %q, want %q",
				test.name, got, test.want)
		}
	}
}

// TestValidEntryNode ensures entry node specifications are accepted and
// rejected as intended.
func TestValidEntryNode(t *testing.T) {
	tests := []struct {
		name string
		node string
		ok   bool
	}{{
		name: "valid with hostname",
		node: "2tMS1Z5DbRMWfYg7rRFpYTqGXpSNryvbRLX@entry.example.org:14626",
		ok:   true,
	}, {
		name: "valid with ipv4",
		node: "2tMS1Z5DbRMWfYg7rRFpYTqGXpSNryvbRLX@10.0.0.1:14626",
		ok:   true,
	}, {
		name: "valid with ipv6",
		node: "2tMS1Z5DbRMWfYg7rRFpYTqGXpSNryvbRLX@[fe80::1]:14626",
		ok:   true,
	}, {
		name: "missing public key",
		node: "entry.example.org:14626",
		ok:   false,
	}, {
		name: "empty public key",
		node: "@entry.example.org:14626",
		ok:   false,
	}, {
		name: "missing port",
		node: "2tMS1Z5DbRMWfYg7rRFpYTqGXpSNryvbRLX@entry.example.org",
		ok:   false,
	}, {
		name: "missing address",
		node: "2tMS1Z5DbRMWfYg7rRFpYTqGXpSNryvbRLX",
		ok:   false,
	}}

	for _, test := range tests {
		err := validEntryNode(test.node)
		if (err == nil) != test.ok {
			t.Errorf("%q: unexpected result -- got err %v, want ok %v",
				test.name, err, test.ok)
		}
	}
}

// TestParseAndSetDebugLevels ensures the debug level parsing accepts both the
// global form and the per subsystem form while rejecting malformed input.
func TestParseAndSetDebugLevels(t *testing.T) {
	tests := []struct {
		name  string
		level string
		ok    bool
	}{{
		name:  "global level",
		level: "debug",
		ok:    true,
	}, {
		name:  "single subsystem",
		level: "DISC=trace",
		ok:    true,
	}, {
		name:  "multiple subsystems",
		level: "DISC=trace,SELN=debug",
		ok:    true,
	}, {
		name:  "invalid global level",
		level: "chatty",
		ok:    false,
	}, {
		name:  "unknown subsystem",
		level: "BOGUS=debug",
		ok:    false,
	}, {
		name:  "invalid subsystem level",
		level: "DISC=chatty",
		ok:    false,
	}, {
		name:  "missing equals in pair",
		level: "DISC=trace,SELN",
		ok:    false,
	}}

	defer setLogLevels(defaultLogLevel)

	for _, test := range tests {
		err := parseAndSetDebugLevels(test.level)
		if (err == nil) != test.ok {
			t.Errorf("%q: unexpected result -- got err %v, want ok %v",
				test.name, err, test.ok)
		}
	}
}
