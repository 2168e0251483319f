// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcchain/mining"
	"github.com/btcsuite/btcchain/organizer"
	btcdchain "github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
)

const (
	// DefaultByteFeeSatoshis is the default price of a serialized byte.
	DefaultByteFeeSatoshis = 1

	// DefaultSigOpFeeSatoshis is the default price of a signature
	// operation.
	DefaultSigOpFeeSatoshis = 100

	// DefaultMinimumOutputSatoshis is the default lowest output value
	// that is not dust.
	DefaultMinimumOutputSatoshis = 500

	// DefaultNotifyLimitHours is the default age of the tip beyond which
	// the chain is stale.
	DefaultNotifyLimitHours = 24

	// DefaultSigCacheMaxSize is the default number of entries of the
	// signature cache.
	DefaultSigCacheMaxSize = 100000
)

// Config is a descriptor which specifies the blockchain instance
// configuration.
type Config struct {
	// ChainParams identifies which chain parameters the chain is
	// associated with.
	//
	// This field is required.
	ChainParams *chaincfg.Params

	// Store defines the store which houses the blocks and the unconfirmed
	// transactions.  It is closed by Close.
	//
	// This field is required.
	Store database.Store

	// TimeSource defines the median time source to use for things such as
	// block processing and determining whether or not the chain is
	// current.  A local clock is used when it is nil.
	TimeSource btcdchain.MedianTimeSource

	// Cores is the number of workers running organization pipelines and
	// script verification.  Zero selects the number of cores.
	Cores int

	// ByteFeeSatoshis and SigOpFeeSatoshis price the serialized bytes and
	// the signature operations of a pooled transaction.
	ByteFeeSatoshis  float64
	SigOpFeeSatoshis float64

	// MinimumOutputSatoshis is the lowest output value of a pooled
	// transaction.
	MinimumOutputSatoshis int64

	// NotifyLimitHours is the age of the tip beyond which the chain is
	// stale.  Zero disables stale detection.
	NotifyLimitHours uint32

	// EnabledForks is the set of rule changes enforced.
	EnabledForks chain.RuleFork

	// ForkHeights holds the activation heights of the height activated
	// rule changes.
	ForkHeights chain.ForkHeights

	// BlockPoolCapacity is the number of orphan and side chain blocks
	// kept.
	BlockPoolCapacity int

	// RejectCacheSize and InvalidCacheSize are the number of rejected
	// transactions and invalid blocks remembered.
	RejectCacheSize  uint
	InvalidCacheSize uint

	// SigCacheMaxSize is the number of entries of the signature cache.
	SigCacheMaxSize uint

	// TemplateMaxBytes and TemplateMaxSigOps are the budgets of the
	// ranked block template kept by the memory pool.
	TemplateMaxBytes  int
	TemplateMaxSigOps int
}

// DefaultConfig returns the configuration for params with every optional
// field set to its default.  The store still has to be provided.
func DefaultConfig(params *chaincfg.Params) *Config {
	return &Config{
		ChainParams:           params,
		ByteFeeSatoshis:       DefaultByteFeeSatoshis,
		SigOpFeeSatoshis:      DefaultSigOpFeeSatoshis,
		MinimumOutputSatoshis: DefaultMinimumOutputSatoshis,
		NotifyLimitHours:      DefaultNotifyLimitHours,
		EnabledForks:          chain.AllRules,
		ForkHeights:           chain.DefaultForkHeights(params),
		BlockPoolCapacity:     organizer.DefaultBlockPoolCapacity,
		RejectCacheSize:       organizer.DefaultRejectCacheSize,
		InvalidCacheSize:      organizer.DefaultInvalidCacheSize,
		SigCacheMaxSize:       DefaultSigCacheMaxSize,
		TemplateMaxBytes:      mining.DefaultTemplateMaxBytes,
		TemplateMaxSigOps:     mining.DefaultTemplateMaxSigOps,
	}
}
