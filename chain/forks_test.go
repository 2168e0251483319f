// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func TestRuleForkString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   RuleFork
		want string
	}{
		{NoRules, "none"},
		{Bip16Rule, "bip16"},
		{Bip16Rule | Bip34Rule, "bip16,bip34"},
		{Bip141Rule | Bip143Rule | Bip147Rule, "bip141,bip143,bip147"},
	}

	for i, test := range tests {
		require.Equal(t, test.want, test.in.String(), "test #%d", i)
	}
}

func TestParseRuleForks(t *testing.T) {
	t.Parallel()

	forks, err := ParseRuleForks("all")
	require.NoError(t, err)
	require.Equal(t, AllRules, forks)

	forks, err = ParseRuleForks("none")
	require.NoError(t, err)
	require.Equal(t, NoRules, forks)

	forks, err = ParseRuleForks("bip16, bip65")
	require.NoError(t, err)
	require.Equal(t, Bip16Rule|Bip65Rule, forks)

	// Round trip every name.
	forks, err = ParseRuleForks(AllRules.String())
	require.NoError(t, err)
	require.Equal(t, AllRules, forks)

	_, err = ParseRuleForks("bip9000")
	require.Error(t, err)
}

func TestForkHeightsActive(t *testing.T) {
	t.Parallel()

	heights := DefaultForkHeights(&chaincfg.MainNetParams)
	always := Bip16Rule | Bip30Rule | Bip90Rule

	tests := []struct {
		name   string
		height uint32
		want   RuleFork
	}{
		{
			name:   "genesis",
			height: 0,
			want:   always,
		},
		{
			name:   "bip34",
			height: uint32(chaincfg.MainNetParams.BIP0034Height),
			want:   always | Bip34Rule,
		},
		{
			name:   "bip66",
			height: uint32(chaincfg.MainNetParams.BIP0066Height),
			want:   always | Bip34Rule | Bip66Rule,
		},
		{
			name:   "csv",
			height: 419328,
			want: always | Bip34Rule | Bip65Rule | Bip66Rule |
				Bip68Rule | Bip112Rule | Bip113Rule,
		},
		{
			name:   "segwit",
			height: 481824,
			want:   AllRules,
		},
	}

	for _, test := range tests {
		require.Equal(t, test.want, heights.Active(test.height), test.name)
	}

	// Negative heights never activate.
	never := ForkHeights{BIP34: -1, BIP65: -1, BIP66: -1, CSV: -1, Segwit: -1}
	require.Equal(t, always, never.Active(1<<30))

	// Regression test activates everything from genesis except the
	// buried forks configured at later heights.
	regtest := DefaultForkHeights(&chaincfg.RegressionNetParams)
	require.True(t, regtest.Active(0)&Bip141Rule != 0)
}
