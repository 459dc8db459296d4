// Package review implements the review-fix convergence core: per-file
// sessions, the controller state machine that drives them to a terminal
// status, and the batch scheduler that runs many sessions concurrently.
package review

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"tomato/internal/logging"
	"tomato/internal/types"
)

// ErrNoProgress marks a session stopped because consecutive repair attempts
// produced byte-identical candidates.
var ErrNoProgress = fmt.Errorf("no progress: consecutive identical candidates")

// Session wraps the shared FileSession state with the workspace knowledge
// needed to back it up and write commits. Exactly one controller goroutine
// owns a Session; none of its methods are safe for concurrent use.
type Session struct {
	State *types.FileSession

	workspace  string
	reportOnly bool
}

// NewSession reads the file, writes the original content to the backup area
// exactly once, and returns an in-progress session. Backup failure is fatal
// for this file: without a durable original we must not edit anything.
func NewSession(path, workspace string, reportOnly bool) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	content := string(data)
	state := &types.FileSession{
		ID:        uuid.NewString(),
		Path:      path,
		Original:  content,
		Current:   content,
		Status:    types.StatusInProgress,
		StartedAt: time.Now(),
	}

	s := &Session{State: state, workspace: workspace, reportOnly: reportOnly}
	if err := s.writeBackup(); err != nil {
		return nil, err
	}
	return s, nil
}

// writeBackup persists the original under .tomato/backup/, mirroring the
// file's path relative to the workspace. Written once, before the first
// iteration; it is the only artifact guaranteed durable on interrupt.
func (s *Session) writeBackup() error {
	rel, err := filepath.Rel(s.workspace, s.State.Path)
	if err != nil || filepath.IsAbs(rel) || len(rel) >= 2 && rel[:2] == ".." {
		rel = filepath.Base(s.State.Path)
	}

	backupPath := filepath.Join(s.workspace, ".tomato", "backup", rel)
	if err := os.MkdirAll(filepath.Dir(backupPath), 0o755); err != nil {
		return fmt.Errorf("backup dir for %s: %w", s.State.Path, err)
	}
	if err := os.WriteFile(backupPath, []byte(s.State.Original), 0o644); err != nil {
		return fmt.Errorf("backup %s: %w", s.State.Path, err)
	}

	s.State.BackupPath = backupPath
	logging.Review("%s: original backed up to %s", s.State.Path, backupPath)
	return nil
}

// Commit makes a verified candidate the session's current content and, in
// fix mode, writes it to disk. The on-disk file is only ever overwritten
// here, after a passed verification.
func (s *Session) Commit(candidate string) error {
	if s.State.Status.Terminal() {
		return fmt.Errorf("commit on terminal session %s", s.State.Path)
	}

	if !s.reportOnly {
		if err := os.WriteFile(s.State.Path, []byte(candidate), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", s.State.Path, err)
		}
	}
	s.State.Current = candidate
	return nil
}

// finish stamps a terminal status.
func (s *Session) finish(status types.Status, reason types.StopReason) {
	s.State.Status = status
	s.State.Reason = reason
	s.State.FinishedAt = time.Now()
}

// fail records an unrecoverable per-file error.
func (s *Session) fail(err error) {
	s.State.Err = err.Error()
	s.finish(types.StatusFailed, types.ReasonFatal)
	logging.ReviewWarn("%s: session failed: %v", s.State.Path, err)
}
