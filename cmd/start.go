package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ccrelay/ccproxy/internal/process"
	"github.com/ccrelay/ccproxy/internal/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the proxy service",
	Long:  `Start the protocol-translating reverse proxy in the foreground.`,
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logFile, _ := cmd.Flags().GetBool("log-file")
	setupLogging(verbose, logFile)

	if err := ensureConfigExists(); err != nil {
		return err
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return err
	}

	color.Green("Starting %s v%s...", AppName, Version)
	logger.Info("starting server",
		"host", cfg.Host,
		"port", cfg.Port,
		"upstreams", len(cfg.Upstreams),
		"currentUpstream", cfg.CurrentUpstream,
	)

	procMgr := process.NewManager(baseDir)
	if err := procMgr.WritePID(); err != nil {
		return err
	}
	defer procMgr.CleanupPID()
	procMgr.IncrementRef()

	srv := server.New(cfgMgr, logger)
	return srv.Start()
}
