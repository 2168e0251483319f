// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcchain/database"
	"github.com/btcsuite/btcchain/database/chaindb"
	btcdchain "github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

const blockDbNamePrefix = "blocks"

var (
	cfg *config
)

// loadStore opens the chain store written by addblock.
func loadStore() (*chaindb.Store, error) {
	// The database name is based on the database type.
	dbName := blockDbNamePrefix + "_" + cfg.DbType
	dbPath := filepath.Join(cfg.DataDir, dbName)
	fmt.Printf("Loading block database from '%s'\n", dbPath)
	return chaindb.Open(cfg.DbType, dbPath)
}

// isNonstandardTransaction determines whether a transaction contains any
// scripts which are not one of the standard types.
func isNonstandardTransaction(tx *btcutil.Tx) bool {
	for _, txOut := range tx.MsgTx().TxOut {
		scriptClass := txscript.GetScriptClass(txOut.PkScript)
		if scriptClass == txscript.NonStandardTy {
			return true
		}
	}
	return false
}

// isCheckpointCandidate returns whether or not the main chain block at height
// is a reasonable checkpoint.  Its neighbors must have timestamps on either
// side of its own and it must only hold standard transactions.
func isCheckpointCandidate(store database.Store, height, top uint32) (bool, error) {
	if height == 0 || height >= top {
		return false, nil
	}

	block, err := store.FullBlock(height)
	if err != nil {
		return false, err
	}
	prev, err := store.BlockByHeight(height - 1)
	if err != nil {
		return false, err
	}
	next, err := store.BlockByHeight(height + 1)
	if err != nil {
		return false, err
	}

	timestamp := block.MsgBlock().Header.Timestamp
	if !prev.Header.Timestamp.Before(timestamp) ||
		!next.Header.Timestamp.After(timestamp) {

		return false, nil
	}

	for _, tx := range block.Transactions() {
		if isNonstandardTransaction(tx) {
			return false, nil
		}
	}
	return true, nil
}

// findCandidates searches the chain backwards from its top for at most
// maxCandidates checkpoint candidates that are confirmed by at least
// confirmations blocks.  Searching stops at the last checkpoint of params
// since there is no point in finding candidates before existing checkpoints.
func findCandidates(store database.Store, params *chaincfg.Params,
	confirmations uint32, maxCandidates int) ([]*chaincfg.Checkpoint, error) {

	top, err := store.TopHeight()
	if err != nil {
		return nil, err
	}

	// Get the latest known checkpoint, or the genesis block if there
	// isn't one.
	latestHeight := uint32(0)
	if n := len(params.Checkpoints); n > 0 {
		latestHeight = uint32(params.Checkpoints[n-1].Height)
	}

	// The top must be at least the last known checkpoint plus the
	// required confirmations.
	requiredHeight := latestHeight + confirmations
	if top < requiredHeight {
		return nil, fmt.Errorf("the block database is only at height "+
			"%d which is less than the latest checkpoint height "+
			"of %d plus required confirmations of %d", top,
			latestHeight, confirmations)
	}

	// Indeterminate progress setup.
	numBlocksToTest := top - confirmations - latestHeight
	progressInterval := (numBlocksToTest / 100) + 1 // min 1
	fmt.Print("Searching for candidates")
	defer fmt.Println()

	// Loop backwards through the chain to find checkpoint candidates.
	candidates := make([]*chaincfg.Checkpoint, 0, maxCandidates)
	numTested := uint32(0)
	for height := top - confirmations; len(candidates) < maxCandidates &&
		height > latestHeight; height-- {

		// Display progress.
		if numTested%progressInterval == 0 {
			fmt.Print(".")
		}
		numTested++

		isCandidate, err := isCheckpointCandidate(store, height, top)
		if err != nil {
			return nil, err
		}
		if !isCandidate {
			continue
		}

		hash, err := store.BlockHash(height)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, &chaincfg.Checkpoint{
			Height: int32(height),
			Hash:   &hash,
		})
	}
	return candidates, nil
}

// showCandidate display a checkpoint candidate using and output format
// determined by the configuration parameters.  The Go syntax output uses the
// format the chaincfg code expects for checkpoints added to the list.
func showCandidate(candidateNum int, checkpoint *chaincfg.Checkpoint) {
	if cfg.UseGoOutput {
		fmt.Printf("Candidate %d -- {%d, newHashFromStr(\"%v\")},\n",
			candidateNum, checkpoint.Height, checkpoint.Hash)
		return
	}

	fmt.Printf("Candidate %d -- Height: %d, Hash: %v\n", candidateNum,
		checkpoint.Height, checkpoint.Hash)
}

func main() {
	// Load configuration and parse command line.
	tcfg, _, err := loadConfig()
	if err != nil {
		os.Exit(1)
	}
	cfg = tcfg

	// Load the block database.
	store, err := loadStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load database:", err)
		os.Exit(1)
	}
	defer store.Close()

	top, err := store.TopHeight()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to read the chain top:", err)
		return
	}
	fmt.Printf("Block database loaded with block height %d\n", top)

	// Find checkpoint candidates.
	candidates, err := findCandidates(store, activeNetParams,
		btcdchain.CheckpointConfirmations, cfg.NumCandidates)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Unable to identify candidates:", err)
		return
	}

	// No candidates.
	if len(candidates) == 0 {
		fmt.Println("No candidates found.")
		return
	}

	// Show the candidates.
	for i, checkpoint := range candidates {
		showCandidate(i+1, checkpoint)
	}
}
