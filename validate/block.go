// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package validate

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcchain/chain"
	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcchain/populate"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// maxTimeOffset is the maximum duration a block time is allowed to be
	// ahead of the current time.
	maxTimeOffset = 2 * time.Hour
)

var (
	// block91842Hash is one of the two nodes which violate the rules set
	// forth in BIP0030.  It is defined as a package level variable to
	// avoid the need to create a new instance every time a check is
	// needed.
	block91842Hash = newHashFromStr("00000000000a4d0a398161ffc163c503763b1f4360639393e0e4c8e300e0caec")

	// block91880Hash is one of the two nodes which violate the rules set
	// forth in BIP0030.  It is defined as a package level variable to
	// avoid the need to create a new instance every time a check is
	// needed.
	block91880Hash = newHashFromStr("00000000000743f190a18c5577a3c2d2a1f610ae9601ac046a38084ccb7cd721")
)

// newHashFromStr converts the passed big-endian hex string into a
// chainhash.Hash.  It only differs from the one available in chainhash in
// that it panics on an error since it will only (and must only) be called
// with hard-coded, and therefore known good, hashes.
func newHashFromStr(hexStr string) *chainhash.Hash {
	hash, err := chainhash.NewHashFromStr(hexStr)
	if err != nil {
		panic(err)
	}
	return hash
}

// BlockValidator validates blocks located on a branch.  Check is context
// free, Accept depends on the chain state of the block's branch position and
// Connect verifies every input script.  A block is rejected as a whole when
// any of its transactions is invalid.
type BlockValidator struct {
	params      *chaincfg.Params
	store       database.Store
	chainState  *populate.ChainState
	prevouts    *populate.Prevouts
	timeSource  blockchain.MedianTimeSource
	sigCache    *txscript.SigCache
	workers     int
	checkpoints map[uint32]*chainhash.Hash
}

// NewBlockValidator returns a block validator.  workers bounds the number of
// concurrent script verifications, zero selecting a default from the number
// of cores.
func NewBlockValidator(params *chaincfg.Params, store database.Store,
	chainState *populate.ChainState, timeSource blockchain.MedianTimeSource,
	sigCache *txscript.SigCache, workers int) *BlockValidator {

	checkpoints := make(map[uint32]*chainhash.Hash, len(params.Checkpoints))
	for _, checkpoint := range params.Checkpoints {
		checkpoints[uint32(checkpoint.Height)] = checkpoint.Hash
	}

	return &BlockValidator{
		params:      params,
		store:       store,
		chainState:  chainState,
		prevouts:    populate.NewPrevouts(store),
		timeSource:  timeSource,
		sigCache:    sigCache,
		workers:     workers,
		checkpoints: checkpoints,
	}
}

// checkProofOfWork ensures the block header bits which indicate the target
// difficulty is in min/max range and that the block hash is less than the
// target difficulty as claimed.
func (v *BlockValidator) checkProofOfWork(header *wire.BlockHeader) error {
	// The target difficulty must be larger than zero.
	target := blockchain.CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		str := fmt.Sprintf("block target difficulty of %064x is too low",
			target)
		return ruleError(ErrUnexpectedDifficulty, str)
	}

	// The target difficulty must be less than the maximum allowed.
	if target.Cmp(v.params.PowLimit) > 0 {
		str := fmt.Sprintf("block target difficulty of %064x is "+
			"higher than max of %064x", target, v.params.PowLimit)
		return ruleError(ErrUnexpectedDifficulty, str)
	}

	// The block hash must be less than the claimed target.
	hash := header.BlockHash()
	hashNum := blockchain.HashToBig(&hash)
	if hashNum.Cmp(target) > 0 {
		str := fmt.Sprintf("block hash of %064x is higher than "+
			"expected max of %064x", hashNum, target)
		return ruleError(ErrHighHash, str)
	}
	return nil
}

// Check performs the context free checks of a block.
func (v *BlockValidator) Check(block *chain.Block) error {
	msgBlock := block.MsgBlock()
	header := &msgBlock.Header
	if err := v.checkProofOfWork(header); err != nil {
		return err
	}

	// Ensure the block time is not too far in the future.
	maxTimestamp := v.timeSource.AdjustedTime().Add(maxTimeOffset)
	if header.Timestamp.After(maxTimestamp) {
		str := fmt.Sprintf("block timestamp of %v is too far in the "+
			"future", header.Timestamp)
		return ruleError(ErrTimeTooNew, str)
	}

	// A block must have at least one transaction.
	numTx := len(msgBlock.Transactions)
	if numTx == 0 {
		return ruleError(ErrNoTransactions, "block does not contain "+
			"any transactions")
	}

	// A block must not exceed the maximum allowed block payload when
	// serialized.
	serializedSize := msgBlock.SerializeSizeStripped()
	if serializedSize > blockchain.MaxBlockBaseSize {
		str := fmt.Sprintf("serialized block is too big - got %d, "+
			"max %d", serializedSize, blockchain.MaxBlockBaseSize)
		return ruleError(ErrBlockTooBig, str)
	}

	// The first transaction in a block must be a coinbase.
	transactions := block.Transactions()
	if !blockchain.IsCoinBase(transactions[0]) {
		return ruleError(ErrFirstTxNotCoinbase, "first transaction in "+
			"block is not a coinbase")
	}

	// A block must not have more than one coinbase.
	for i, tx := range transactions[1:] {
		if blockchain.IsCoinBase(tx) {
			str := fmt.Sprintf("block contains second coinbase at "+
				"index %d", i+1)
			return ruleError(ErrMultipleCoinbases, str)
		}
	}

	// Do some preliminary checks on each transaction to ensure they are
	// sane before continuing.
	for _, tx := range transactions {
		if err := CheckTransactionSanity(tx); err != nil {
			return err
		}
	}

	// Build merkle tree and ensure the calculated merkle root matches the
	// entry in the block header.
	calculatedMerkleRoot := chain.TxMerkleRoot(transactions)
	if header.MerkleRoot != calculatedMerkleRoot {
		str := fmt.Sprintf("block merkle root is invalid - block "+
			"header indicates %v, but calculated value is %v",
			header.MerkleRoot, calculatedMerkleRoot)
		return ruleError(ErrBadMerkleRoot, str)
	}

	// Check for duplicate transactions.
	existingTxHashes := make(map[chainhash.Hash]struct{})
	for _, tx := range transactions {
		hash := tx.Hash()
		if _, exists := existingTxHashes[*hash]; exists {
			str := fmt.Sprintf("block contains duplicate "+
				"transaction %v", hash)
			return ruleError(ErrDuplicateTx, str)
		}
		existingTxHashes[*hash] = struct{}{}
	}

	// The number of signature operations must be less than the maximum
	// allowed per block.
	totalSigOps := 0
	for _, tx := range transactions {
		// We could potentially overflow the accumulator so check for
		// overflow.
		lastSigOps := totalSigOps
		totalSigOps += blockchain.CountSigOps(tx)
		if totalSigOps < lastSigOps || totalSigOps > MaxBlockSigOps {
			str := fmt.Sprintf("block contains too many signature "+
				"operations - got %v, max %v", totalSigOps,
				MaxBlockSigOps)
			return ruleError(ErrTooManySigOps, str)
		}
	}

	return nil
}

// checkHeaderContext performs the checks of the header that depend on the
// chain state of the block.
func (v *BlockValidator) checkHeaderContext(block *chain.Block, state *chain.State) error {
	header := &block.MsgBlock().Header

	// Ensure the difficulty specified in the block header matches the
	// calculated difficulty based on the previous block and difficulty
	// retarget rules.
	expectedBits := state.RequiredBits
	if v.chainState.MinDifficultyAllowed(state, header.Timestamp) {
		expectedBits = v.params.PowLimitBits
	}
	if header.Bits != expectedBits && header.Bits != state.RequiredBits {
		str := fmt.Sprintf("block difficulty of %d is not the expected "+
			"value of %d", header.Bits, expectedBits)
		return ruleError(ErrUnexpectedDifficulty, str)
	}

	// Ensure the timestamp for the block header is after the median time
	// of the last several blocks (medianTimeBlocks).
	if !header.Timestamp.After(state.MedianTimePast) {
		str := fmt.Sprintf("block timestamp of %v is not after "+
			"expected %v", header.Timestamp, state.MedianTimePast)
		return ruleError(ErrTimeTooOld, str)
	}

	// Reject outdated block versions once a majority of the network has
	// upgraded.
	minVersion := int32(1)
	switch {
	case state.IsEnabled(chain.Bip65Rule):
		minVersion = 4
	case state.IsEnabled(chain.Bip66Rule):
		minVersion = 3
	case state.IsEnabled(chain.Bip34Rule):
		minVersion = 2
	}
	if header.Version < minVersion {
		str := fmt.Sprintf("new blocks with version %d are no longer "+
			"valid", header.Version)
		return ruleError(ErrBlockVersionTooOld, str)
	}

	// Ensure the chain matches up to predetermined checkpoints.
	height := block.Validation.Height
	if checkpoint, ok := v.checkpoints[height]; ok && *checkpoint != *block.Hash() {
		str := fmt.Sprintf("block at height %d does not match "+
			"checkpoint hash", height)
		return ruleError(ErrBadCheckpoint, str)
	}
	return nil
}

// Accept validates block against block.Validation.State.  The block must
// have been located on its branch.  Previous outputs are populated from the
// branch and the confirmed outputs at or below the fork point.
func (v *BlockValidator) Accept(block *chain.Block) error {
	state := block.Validation.State
	if state == nil || block.Validation.Branch == nil {
		return chain.AssertError("block accepted without a chain state " +
			"or branch")
	}
	if err := v.checkHeaderContext(block, state); err != nil {
		return err
	}

	// Ensure all transactions in the block are finalized.
	height := block.Validation.Height
	lockTime := LockTimeFor(state, block.MsgBlock().Header.Timestamp)
	for _, tx := range block.Transactions() {
		if !blockchain.IsFinalizedTransaction(tx, int32(height), lockTime) {
			str := fmt.Sprintf("block contains unfinalized "+
				"transaction %v", tx.Hash())
			return ruleError(ErrUnfinalizedTx, str)
		}
	}

	// Ensure coinbase starts with serialized block heights for blocks
	// whose version is the serializedHeightVersion or newer once a
	// majority of the network has upgraded.
	txns := block.Txns()
	if state.IsEnabled(chain.Bip34Rule) {
		if err := checkSerializedHeight(txns[0].Tx, height); err != nil {
			return err
		}
	}

	if err := v.prevouts.Block(block); err != nil {
		return err
	}

	if state.IsEnabled(chain.Bip30Rule) {
		if err := v.checkBIP0030(block); err != nil {
			return err
		}
	}

	// The number of signature operations must be less than the maximum
	// allowed per block.
	totalSigOps := 0
	for _, tx := range txns {
		if err := CheckTransactionInputs(tx, state, v.params); err != nil {
			return err
		}

		lastSigOps := totalSigOps
		totalSigOps += tx.Validation.SigOps
		if totalSigOps < lastSigOps || totalSigOps > MaxBlockSigOps {
			str := fmt.Sprintf("block contains too many "+
				"signature operations - got %v, max %v",
				totalSigOps, MaxBlockSigOps)
			return ruleError(ErrTooManySigOps, str)
		}
	}

	// The total output values of the coinbase transaction must not exceed
	// the expected subsidy value plus total transaction fees gained from
	// mining the block.
	totalFees := block.Fees()
	totalSatoshiOut := txns[0].TotalOutput()
	expectedSatoshiOut := blockchain.CalcBlockSubsidy(int32(height), v.params) +
		totalFees
	if totalSatoshiOut > expectedSatoshiOut {
		str := fmt.Sprintf("coinbase transaction for block pays %v "+
			"which is more than expected value of %v",
			totalSatoshiOut, expectedSatoshiOut)
		return ruleError(ErrBadCoinbaseValue, str)
	}

	log.Debugf("Accepted block %v at height %d (%d transactions, %d "+
		"sigops)", block.Hash(), height, len(txns), totalSigOps)
	return nil
}

// isBIP0030Node returns whether or not the passed block is one of the two
// blocks that violate the BIP0030 rule which prevents transactions from
// overwriting old ones.
func (v *BlockValidator) isBIP0030Node(block *chain.Block) bool {
	if v.params.Net != wire.MainNet {
		return false
	}
	hash := block.Hash()
	return *hash == *block91842Hash || *hash == *block91880Hash
}

// checkBIP0030 ensures blocks do not contain duplicate transactions which
// 'overwrite' older transactions that are not fully spent.  This prevents an
// attack where a coinbase and all of its dependent transactions could be
// duplicated to effectively revert the overwritten transactions to a single
// confirmation thereby making them vulnerable to a double spend.
func (v *BlockValidator) checkBIP0030(block *chain.Block) error {
	if v.isBIP0030Node(block) {
		return nil
	}

	branch := block.Validation.Branch
	index := int(block.Validation.Height - branch.ForkHeight() - 1)
	for _, tx := range block.Transactions() {
		hash := tx.Hash()
		for i := range tx.MsgTx().TxOut {
			outpoint := wire.OutPoint{Hash: *hash, Index: uint32(i)}
			output, ok := branch.Output(outpoint, index)
			if !ok {
				var err error
				output, err = v.store.Output(outpoint,
					branch.ForkHeight(), true)
				if database.IsNotFound(err) {
					break
				}
				if err != nil {
					return err
				}
				if !output.Spent() {
					output.SpenderHeight = branch.SpenderHeight(
						outpoint, index)
				}
			}
			if !output.Spent() {
				str := fmt.Sprintf("tried to overwrite "+
					"transaction %v at block height %d "+
					"that is not fully spent", hash,
					output.Height)
				return ruleError(ErrDuplicateTx, str)
			}
		}
	}
	return nil
}

// Connect verifies every input script of the block in one parallel pass.
func (v *BlockValidator) Connect(block *chain.Block) error {
	state := block.Validation.State
	if state == nil {
		return chain.AssertError("block connected without a chain state")
	}
	return checkScripts(block.Txns(), state.Forks, v.sigCache, v.workers)
}
