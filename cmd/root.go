// Package cmd defines the command-line surface: the duplicates and sync
// subcommands, their flags, and the shared run setup (configuration, logging,
// metrics) both go through before any worker pool starts.
package cmd

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dupsync/dupsync/pkg/buildinfo"
	"github.com/dupsync/dupsync/pkg/config"
	"github.com/dupsync/dupsync/pkg/plog"
)

// Run executes the CLI with the given arguments.
func Run(ctx context.Context, args []string) error {
	root := &cli.Command{
		Name:    buildinfo.Name,
		Usage:   "find duplicate files and keep directory trees in sync",
		Version: buildinfo.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the configuration file (default: ./" + config.FileName + ")",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level (debug, info, notice, warn, error)",
			},
		},
		Commands: []*cli.Command{
			duplicatesCommand(),
			syncCommand(),
		},
	}
	return root.Run(ctx, args)
}

// setupRun loads and validates the configuration, applies the log level, and
// opens the per-invocation log file. The returned function closes the log.
func setupRun(cmd *cli.Command, start time.Time) (config.Config, func(), error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return cfg, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	level := cfg.LogLevel
	if s := cmd.String("log-level"); s != "" {
		level = s
	}
	plog.SetLevel(plog.LevelFromString(level))

	logPath, err := plog.OpenRunLog(cfg.LogDir, start)
	if err != nil {
		// A run without its log artifact still beats no run.
		plog.Warn("Could not open run log, continuing with console only", "error", err)
		return cfg, func() {}, nil
	}
	plog.Info("Run started", "app", buildinfo.Name, "version", buildinfo.Version, "log", logPath)
	cfg.LogSummary(plog.Debug)

	return cfg, func() {
		plog.Info("Run finished", "duration", time.Since(start).Truncate(time.Millisecond).String())
		plog.CloseRunLog()
	}, nil
}
