package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tomato/internal/knowledge"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace review state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Printf("Workspace: %s\n", workspace)
	fmt.Printf("Max iterations: %d, mini-batch: %d\n", cfg.Review.MaxIterations, cfg.Review.MiniBatch)

	fmt.Printf("Analyzers: ")
	for i, a := range cfg.Analyzers.Commands {
		if i > 0 {
			fmt.Print(", ")
		}
		fmt.Print(a.Name)
	}
	if cfg.Analyzers.Structural.Enabled {
		if len(cfg.Analyzers.Commands) > 0 {
			fmt.Print(", ")
		}
		fmt.Print("structural")
	}
	fmt.Println()

	dbPath := cfg.Knowledge.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}
	if store, err := knowledge.OpenStore(dbPath); err == nil {
		if count, err := store.Count(cmd.Context()); err == nil {
			fmt.Printf("Knowledge base: %d chunks (%s)\n", count, dbPath)
		}
		store.Close()
	} else {
		fmt.Printf("Knowledge base: unavailable (%v)\n", err)
	}

	backupDir := filepath.Join(workspace, ".tomato", "backup")
	fmt.Printf("Backups: %d files (%s)\n", countFiles(backupDir), backupDir)

	reportDir := cfg.Review.ReportDir
	if !filepath.IsAbs(reportDir) {
		reportDir = filepath.Join(workspace, reportDir)
	}
	fmt.Printf("Reports: %d files (%s)\n", countFiles(reportDir), reportDir)
	return nil
}

func countFiles(dir string) int {
	count := 0
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			count++
		}
		return nil
	})
	return count
}
