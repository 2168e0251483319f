// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package log

import (
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	require.Equal(t, []string{"BCDB", "CHAN", "MAIN", "MINR", "ORGN", "POPL",
		"TXMP", "VALD"}, SupportedSubsystems())

	SetLogLevels("warn")
	SetLogLevel("ORGN", "debug")
	SetLogLevel("NONE", "trace")
	require.Equal(t, btclog.LevelDebug, orgnLog.Level())
	require.Equal(t, btclog.LevelWarn, chanLog.Level())

	// Invalid levels fall back to info.
	SetLogLevel("CHAN", "loud")
	require.Equal(t, btclog.LevelInfo, chanLog.Level())
	require.False(t, ValidLogLevel("loud"))
	require.True(t, ValidLogLevel("trace"))

	require.Equal(t, "block", PickNoun(1, "block", "blocks"))
	require.Equal(t, "blocks", PickNoun(0, "block", "blocks"))
}
