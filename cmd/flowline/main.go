// Command flowline runs the multi-agent workflow engine: HTTP API,
// metrics endpoint, SQLite (or Redis) backed event log, and the tool
// approval gate.
//
// Usage:
//
//	flowline serve                        # start the engine
//	flowline serve --config config.yaml   # with a config file
//	flowline version                      # print build info
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/flowline-ai/flowline/config"
)

// Build metadata, injected at link time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		fmt.Printf("flowline %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
	default:
		printUsage()
		os.Exit(1)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML config file")
	_ = fs.Parse(args)

	cfg, err := config.NewLoader().
		WithConfigPath(*configPath).
		WithValidator((*config.Config).Validate).
		Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	srv := NewServer(cfg, *configPath, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	srv.WaitForShutdown()
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage:
  flowline serve [--config config.yaml]
  flowline version`)
}
