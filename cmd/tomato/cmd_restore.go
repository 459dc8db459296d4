package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tomato/internal/logging"
)

var restoreCmd = &cobra.Command{
	Use:   "restore [files...]",
	Short: "Restore files from their pre-review backups",
	Long: `Copies originals back from .tomato/backup/ over the workspace files.
With no arguments every backed-up file is restored. Backups are kept after
restoring.`,
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	backupDir := filepath.Join(workspace, ".tomato", "backup")
	if _, err := os.Stat(backupDir); err != nil {
		return fmt.Errorf("no backups found at %s", backupDir)
	}

	// Limit restoration to the named files when given.
	wanted := make(map[string]bool, len(args))
	for _, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return err
		}
		wanted[abs] = true
	}

	restored := 0
	err := filepath.WalkDir(backupDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(backupDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(workspace, rel)
		if len(wanted) > 0 && !wanted[target] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read backup %s: %w", path, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("restore %s: %w", target, err)
		}
		logging.Review("%s: restored from %s", target, path)
		fmt.Printf("Restored %s\n", target)
		restored++
		return nil
	})
	if err != nil {
		return err
	}
	if restored == 0 {
		return fmt.Errorf("nothing restored")
	}
	fmt.Printf("%d files restored\n", restored)
	return nil
}
