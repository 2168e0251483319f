// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcchain/blockchain"
	"github.com/btcsuite/btcchain/database/chaindb"
	"github.com/btcsuite/btcchain/internal/limits"
	logpkg "github.com/btcsuite/btcchain/internal/log"
)

const (
	// blockDbNamePrefix is the prefix for the chain database.
	blockDbNamePrefix = "blocks"
)

var (
	cfg *config
	log = logpkg.MainLog
)

// loadStore opens the chain store, creating its directory as needed.
func loadStore() (*chaindb.Store, error) {
	// The database name is based on the database type.
	dbName := blockDbNamePrefix + "_" + cfg.DbType
	dbPath := filepath.Join(cfg.DataDir, dbName)
	if cfg.DbType != chaindb.TypeMemory {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, err
		}
	}

	log.Infof("Loading block database from '%s'", dbPath)
	store, err := chaindb.Open(cfg.DbType, dbPath)
	if err != nil {
		return nil, err
	}

	log.Info("Block database loaded")
	return store, nil
}

// realMain is the real main function for the utility.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func realMain() error {
	// Load configuration and parse command line.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg
	defer func() {
		if logpkg.LogRotator != nil {
			logpkg.LogRotator.Close()
		}
	}()

	// Load the block database.
	store, err := loadStore()
	if err != nil {
		log.Errorf("Failed to load database: %v", err)
		return err
	}

	chainCfg := cfg.chainConfig()
	chainCfg.Store = store
	chain, err := blockchain.New(chainCfg)
	if err != nil {
		store.Close()
		log.Errorf("Failed to create chain: %v", err)
		return err
	}
	if err := chain.Start(); err != nil {
		chain.Close()
		log.Errorf("Failed to start chain: %v", err)
		return err
	}
	defer chain.Close()

	fi, err := os.Open(cfg.InFile)
	if err != nil {
		log.Errorf("Failed to open file %v: %v", cfg.InFile, err)
		return err
	}
	defer fi.Close()

	// Interrupting the import stops it after the block in progress.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log.Info("Starting import")
	importer := newBlockImporter(chain, fi, activeNetParams.Net,
		time.Duration(cfg.Progress)*time.Second)
	results := importer.Import(ctx)
	if results.err != nil {
		log.Errorf("%v", results.err)
		return results.err
	}

	log.Infof("Processed a total of %d blocks (%d imported, %d already "+
		"known)", results.blocksProcessed, results.blocksImported,
		results.blocksProcessed-results.blocksImported)
	return nil
}

func main() {
	// Up some limits.
	if err := limits.SetLimits(); err != nil {
		os.Exit(1)
	}

	// Work around defer not working after os.Exit()
	if err := realMain(); err != nil {
		os.Exit(1)
	}
}
