// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, preRel, build string
	}{
		{in: "beta", preRel: "beta", build: "beta"},
		{in: "rc.1", preRel: "rc1", build: "rc.1"},
		{in: "a b+c", preRel: "abc", build: "abc"},
		{in: "ü-1", preRel: "-1", build: "-1"},
	}
	for _, test := range tests {
		require.Equal(t, test.preRel, NormalizePreRelString(test.in), test.in)
		require.Equal(t, test.build, NormalizeBuildString(test.in), test.in)
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	version := String()
	require.True(t, strings.HasPrefix(version, "0.1.0-pre"), version)
	require.Equal(t, AppName+" version "+version, Full())
}
