package main

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/speclog/internal/config"
	"github.com/jackzampolin/speclog/internal/providers"
	"github.com/jackzampolin/speclog/internal/watch"
)

var (
	watchInbox     string
	watchOutputDir string
	watchExisting  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process PDFs dropped into an inbox directory",
	Long: `Watch an inbox directory and run extraction on every PDF that appears
there, one document at a time. Configuration changes are picked up between
documents without restarting.

Examples:
  speclog watch
  speclog watch --inbox ./incoming --output-dir ./logs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, mgr, err := loadEnv()
		if err != nil {
			return err
		}
		cfg := mgr.Get()
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		reg := providers.NewRegistryFromConfig(withLogger(cfg.ToProviderRegistryConfig()))
		p, err := newPipeline(cfg, h, reg, logger)
		if err != nil {
			return err
		}

		var mu sync.Mutex
		mgr.OnChange(func(next *config.Config) {
			if err := next.Validate(); err != nil {
				logger.Warn("ignoring invalid configuration change", "error", err)
				return
			}
			reg.Reload(withLogger(next.ToProviderRegistryConfig()))
			np, err := newPipeline(next, h, reg, logger)
			if err != nil {
				logger.Warn("failed to apply configuration change", "error", err)
				return
			}
			mu.Lock()
			cfg, p = next, np
			mu.Unlock()
			logger.Info("configuration reloaded")
		})
		mgr.WatchConfig()

		inbox := watchInbox
		if inbox == "" {
			inbox = cfg.Watch.Inbox
		}
		if inbox == "" {
			inbox = h.InboxDir()
		}

		return watch.Run(cmd.Context(), watch.Config{
			Dir:         inbox,
			Debounce:    time.Duration(cfg.Watch.DebounceMS) * time.Millisecond,
			InitialScan: watchExisting,
			Logger:      logger,
		}, func(ctx context.Context, path string) error {
			mu.Lock()
			curCfg, curP := cfg, p
			mu.Unlock()

			summary, err := process(ctx, curP, path, outputDir(watchOutputDir, curCfg, h), curCfg)
			if err != nil {
				return err
			}
			return printer.Print(summary)
		})
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchInbox, "inbox", "", "directory to watch (default: watch.inbox or ~/.speclog/inbox)")
	watchCmd.Flags().StringVar(&watchOutputDir, "output-dir", "", "directory for submittal logs")
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "also process PDFs already in the inbox")
}
