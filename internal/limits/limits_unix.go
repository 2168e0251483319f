// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build unix

package limits

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	// fileLimitWant is the number of open files the leveldb and pebble
	// engines are given when the hard limit allows it.
	fileLimitWant = 2048
	fileLimitMin  = 1024
)

// SetLimits raises the open file limit of the process for the database
// engines.
func SetLimits() error {
	var rLimit unix.Rlimit

	err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		return err
	}
	if rLimit.Cur > fileLimitWant {
		return nil
	}
	if rLimit.Max < fileLimitMin {
		return fmt.Errorf("need at least %v file descriptors",
			fileLimitMin)
	}
	if rLimit.Max < fileLimitWant {
		rLimit.Cur = rLimit.Max
	} else {
		rLimit.Cur = fileLimitWant
	}
	err = unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		// Try the minimum instead.
		rLimit.Cur = fileLimitMin
		return unix.Setrlimit(unix.RLIMIT_NOFILE, &rLimit)
	}
	return nil
}
