// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sampleconfig provides a single function that returns the contents
// of the sample configuration file for autopeerd.  It is provided as a
// package so the daemon can write the commented sample config on the first
// run and tooling can keep generated docs in sync with it.
package sampleconfig

import (
	_ "embed"
)

// sampleAutopeerdConf is a string containing the commented example config
// for autopeerd.
//
//go:embed sample-autopeerd.conf
var sampleAutopeerdConf string

// Autopeerd returns a string containing the commented example config for
// autopeerd.
func Autopeerd() string {
	return sampleAutopeerdConf
}
