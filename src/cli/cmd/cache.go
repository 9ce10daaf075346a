package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atelierhq/stagecraft/src/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the stage artifact cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached stage artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cache.New(cfg.Cache.Dir, true)
		if err := c.Clear(); err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Printf("cleared %s\n", cfg.Cache.Dir)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry count and size",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cache.New(cfg.Cache.Dir, true)
		entries, bytes, err := c.Stats()
		if err != nil {
			return fmt.Errorf("reading cache: %w", err)
		}
		fmt.Printf("%d entries, %s in %s\n", entries, formatBytes(bytes), cfg.Cache.Dir)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
