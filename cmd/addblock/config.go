// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcchain/blockchain"
	"github.com/btcsuite/btcchain/database/chaindb"
	logpkg "github.com/btcsuite/btcchain/internal/log"
	"github.com/btcsuite/btcchain/internal/version"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultDbType     = chaindb.TypeLevelDB
	defaultDataFile   = "bootstrap.dat"
	defaultProgress   = 10
	defaultLogLevel   = "info"
	defaultLogDirname = "logs"
	defaultLogFile    = "addblock.log"
)

var (
	appHomeDir      = btcutil.AppDataDir("btcchain", false)
	defaultDataDir  = filepath.Join(appHomeDir, "data")
	defaultLogDir   = filepath.Join(appHomeDir, defaultLogDirname)
	knownDbTypes    = chaindb.SupportedEngines()
	activeNetParams = &chaincfg.MainNetParams
)

// config defines the configuration options for addblock.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ShowVersion    bool    `short:"V" long:"version" description:"Display version information and exit"`
	DataDir        string  `short:"b" long:"datadir" description:"Location of the chain data directory"`
	LogDir         string  `long:"logdir" description:"Directory to log output"`
	DebugLevel     string  `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	DbType         string  `long:"dbtype" description:"Database backend to use for the Block Chain"`
	InFile         string  `short:"i" long:"infile" description:"File containing the block(s)"`
	Progress       int     `short:"p" long:"progress" description:"Show a progress message each time this number of seconds have passed -- Use 0 to disable progress announcements"`
	Cores          int     `long:"cores" description:"Number of workers used to validate blocks -- Use 0 for one per core"`
	ByteFee        float64 `long:"bytefee" description:"Price in satoshi of a serialized transaction byte"`
	SigOpFee       float64 `long:"sigopfee" description:"Price in satoshi of a signature operation"`
	MinimumOutput  int64   `long:"minoutput" description:"Lowest output value in satoshi that is not dust"`
	RegressionTest bool    `long:"regtest" description:"Use the regression test network"`
	SimNet         bool    `long:"simnet" description:"Use the simulation test network"`
	TestNet3       bool    `long:"testnet" description:"Use the test network"`
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// validDbType returns whether or not dbType is a supported database type.
func validDbType(dbType string) bool {
	for _, knownType := range knownDbTypes {
		if dbType == knownType {
			return true
		}
	}

	return false
}

// netName returns the name used when referring to a bitcoin network.  Blocks
// for testnet version 3 are kept in the directory "testnet", which does not
// match the Name field of the chaincfg parameters.
func netName(chainParams *chaincfg.Params) string {
	switch chainParams.Net {
	case wire.TestNet3:
		return "testnet"
	default:
		return chainParams.Name
	}
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !logpkg.ValidLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		logpkg.SetLogLevels(debugLevel)
		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	supported := logpkg.SupportedSubsystems()
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		known := false
		for _, id := range supported {
			known = known || id == subsysID
		}
		if !known {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsystems %v"
			return fmt.Errorf(str, subsysID, supported)
		}

		// Validate log level.
		if !logpkg.ValidLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		logpkg.SetLogLevel(subsysID, logLevel)
	}

	return nil
}

// chainConfig returns the chain configuration selected by cfg.
func (cfg *config) chainConfig() *blockchain.Config {
	chainCfg := blockchain.DefaultConfig(activeNetParams)
	chainCfg.Cores = cfg.Cores
	chainCfg.ByteFeeSatoshis = cfg.ByteFee
	chainCfg.SigOpFeeSatoshis = cfg.SigOpFee
	chainCfg.MinimumOutputSatoshis = cfg.MinimumOutput
	return chainCfg
}

// loadConfig initializes and parses the config using command line options.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		DataDir:       defaultDataDir,
		LogDir:        defaultLogDir,
		DebugLevel:    defaultLogLevel,
		DbType:        defaultDbType,
		InFile:        defaultDataFile,
		Progress:      defaultProgress,
		ByteFee:       blockchain.DefaultByteFeeSatoshis,
		SigOpFee:      blockchain.DefaultSigOpFeeSatoshis,
		MinimumOutput: blockchain.DefaultMinimumOutputSatoshis,
	}

	// Parse command line options.
	parser := flags.NewParser(&cfg, flags.Default)
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	if cfg.ShowVersion {
		fmt.Println(version.Full())
		os.Exit(0)
	}

	// Multiple networks can't be selected simultaneously.
	funcName := "loadConfig"
	numNets := 0
	if cfg.TestNet3 {
		numNets++
		activeNetParams = &chaincfg.TestNet3Params
	}
	if cfg.RegressionTest {
		numNets++
		activeNetParams = &chaincfg.RegressionNetParams
	}
	if cfg.SimNet {
		numNets++
		activeNetParams = &chaincfg.SimNetParams
	}
	if numNets > 1 {
		str := "%s: The testnet, regtest, and simnet params can't be " +
			"used together -- choose one of the three"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Validate database type.
	if !validDbType(cfg.DbType) {
		str := "%s: The specified database type [%v] is invalid -- " +
			"supported types %v"
		err := fmt.Errorf(str, funcName, cfg.DbType, knownDbTypes)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Namespace the data and log directories per network.
	cfg.DataDir = filepath.Join(cfg.DataDir, netName(activeNetParams))
	cfg.LogDir = filepath.Join(cfg.LogDir, netName(activeNetParams))

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", logpkg.SupportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	err = logpkg.InitLogRotator(filepath.Join(cfg.LogDir, defaultLogFile))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Ensure the specified block file exists.
	if !fileExists(cfg.InFile) {
		str := "%s: The specified block file [%v] does not exist"
		err := fmt.Errorf(str, funcName, cfg.InFile)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	return &cfg, remainingArgs, nil
}
