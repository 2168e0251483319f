// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

// RuleFork is a set of consensus rule changes.  A State carries the forks that
// are both enabled by configuration and activated at its height.
type RuleFork uint32

const (
	// NoRules is the empty set.
	NoRules RuleFork = 0

	// Bip16Rule enables pay-to-script-hash evaluation.
	Bip16Rule RuleFork = 1 << iota

	// Bip30Rule rejects transactions overwriting unspent transactions.
	Bip30Rule

	// Bip34Rule requires the block height in the coinbase and version 2
	// blocks.
	Bip34Rule

	// Bip66Rule requires strict DER signatures and version 3 blocks.
	Bip66Rule

	// Bip65Rule enables OP_CHECKLOCKTIMEVERIFY and version 4 blocks.
	Bip65Rule

	// Bip90Rule buries the bip34/65/66 activations at fixed heights.
	Bip90Rule

	// Bip68Rule enables relative lock-time through sequence numbers.
	Bip68Rule

	// Bip112Rule enables OP_CHECKSEQUENCEVERIFY.
	Bip112Rule

	// Bip113Rule uses median time past for lock-time evaluation.
	Bip113Rule

	// Bip141Rule enables segregated witness.
	Bip141Rule

	// Bip143Rule enables the witness signature hash.
	Bip143Rule

	// Bip147Rule enforces the null dummy for multisig.
	Bip147Rule

	// AllRules enables every rule change.
	AllRules RuleFork = Bip16Rule | Bip30Rule | Bip34Rule | Bip66Rule |
		Bip65Rule | Bip90Rule | Bip68Rule | Bip112Rule | Bip113Rule |
		Bip141Rule | Bip143Rule | Bip147Rule
)

var ruleForkNames = []struct {
	fork RuleFork
	name string
}{
	{Bip16Rule, "bip16"},
	{Bip30Rule, "bip30"},
	{Bip34Rule, "bip34"},
	{Bip66Rule, "bip66"},
	{Bip65Rule, "bip65"},
	{Bip90Rule, "bip90"},
	{Bip68Rule, "bip68"},
	{Bip112Rule, "bip112"},
	{Bip113Rule, "bip113"},
	{Bip141Rule, "bip141"},
	{Bip143Rule, "bip143"},
	{Bip147Rule, "bip147"},
}

// String returns the set as a comma separated list of fork names.
func (f RuleFork) String() string {
	if f == NoRules {
		return "none"
	}
	var names []string
	for _, entry := range ruleForkNames {
		if f&entry.fork != 0 {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseRuleForks parses a comma separated list of fork names, "all" or
// "none".
func ParseRuleForks(s string) (RuleFork, error) {
	switch s {
	case "all":
		return AllRules, nil
	case "none", "":
		return NoRules, nil
	}

	var forks RuleFork
next:
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		for _, entry := range ruleForkNames {
			if entry.name == name {
				forks |= entry.fork
				continue next
			}
		}
		return NoRules, fmt.Errorf("unknown rule fork %q", name)
	}
	return forks, nil
}

// ForkHeights holds the activation height of each height activated rule
// change.  A negative height never activates.
type ForkHeights struct {
	BIP34  int32
	BIP65  int32
	BIP66  int32
	CSV    int32
	Segwit int32
}

// DefaultForkHeights returns the activation heights for the network.  The
// buried soft fork heights come from the chain parameters; the deployment
// based ones use the heights at which they locked in.
func DefaultForkHeights(params *chaincfg.Params) ForkHeights {
	heights := ForkHeights{
		BIP34: params.BIP0034Height,
		BIP65: params.BIP0065Height,
		BIP66: params.BIP0066Height,
	}
	switch params.Net {
	case wire.MainNet:
		heights.CSV = 419328
		heights.Segwit = 481824
	case wire.TestNet3:
		heights.CSV = 770112
		heights.Segwit = 834624
	}
	return heights
}

// Active returns the rule changes active at height.
func (h ForkHeights) Active(height uint32) RuleFork {
	reached := func(at int32) bool {
		return at >= 0 && int64(height) >= int64(at)
	}

	forks := Bip16Rule | Bip30Rule | Bip90Rule
	if reached(h.BIP34) {
		forks |= Bip34Rule
	}
	if reached(h.BIP65) {
		forks |= Bip65Rule
	}
	if reached(h.BIP66) {
		forks |= Bip66Rule
	}
	if reached(h.CSV) {
		forks |= Bip68Rule | Bip112Rule | Bip113Rule
	}
	if reached(h.Segwit) {
		forks |= Bip141Rule | Bip143Rule | Bip147Rule
	}
	return forks
}
