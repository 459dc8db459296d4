package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"tomato/internal/report"
	"tomato/internal/watch"
)

var watchExts []string

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Review files continuously as they change",
	Long: `Watches a directory tree and runs the review loop over each file
after it changes, debouncing rapid saves. Runs until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchExts, "ext", []string{".py"}, "File extensions to watch")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	root := workspace
	if len(args) == 1 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		root = abs
	}

	scheduler, cleanup, err := buildScheduler(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	watcher, err := watch.New(root, watchExts, func(ctx context.Context, paths []string) {
		batch := scheduler.Run(ctx, paths)
		fmt.Print(report.RenderTerminalSummary(batch))
	})
	if err != nil {
		return err
	}

	fmt.Printf("Watching %s for %v changes. Ctrl-C to stop.\n", root, watchExts)
	return watcher.Run(cmd.Context())
}
