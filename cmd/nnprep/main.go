// Command nnprep prepares molecular-simulation input records: it assembles
// snapshot files from raw tensors, migrates legacy snapshots to the current
// schema, computes pair lists, and fetches dataset archives.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/atomworks/nnprep/internal/config"
	logpkg "github.com/atomworks/nnprep/internal/logger"
	"github.com/atomworks/nnprep/internal/version"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: nnprep <command> [flags]

commands:
  pack      assemble a snapshot from a positions tensor and a system file
  convert   migrate a snapshot of any schema version to the current one
  validate  check a snapshot against the record invariants
  inspect   summarise a snapshot's fields and statistics
  pairs     compute a cutoff pair list and write an updated snapshot
  collate   merge snapshots into one batched snapshot
  split     partition a directory of snapshots into train/validation/test
  fetch     download a configured dataset archive into the cache
  version   print build metadata
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	command := os.Args[1]
	args := os.Args[2:]

	if command == "version" {
		fmt.Printf("nnprep %s (commit %s, built %s)\n",
			version.Version, version.Commit, version.Date)
		return
	}

	env := config.GetEnv()

	// Config is optional for file-local commands; fetch insists on it.
	cfg, cfgErr := config.Load(env)
	if cfgErr != nil {
		cfg = config.Config{}
		cfg.ApplyDefaults()
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	switch command {
	case "pack":
		err = runPack(logger, args)
	case "convert":
		err = runConvert(logger, args)
	case "validate":
		err = runValidate(logger, args)
	case "inspect":
		err = runInspect(args)
	case "pairs":
		err = runPairs(logger, cfg, args)
	case "collate":
		err = runCollate(logger, args)
	case "split":
		err = runSplit(cfg, args)
	case "fetch":
		if cfgErr != nil {
			logger.Fatal("fetch requires a config file", zap.Error(cfgErr))
		}
		err = runFetch(logger, cfg, args)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Fatal("command failed",
			zap.String("command", command),
			zap.Error(err),
		)
	}
}
