package batch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/afero"
)

// BackupLayout is the timestamp suffix for backup files: <path>.bak.<ts>.
const BackupLayout = "20060102_150405.000000"

// ErrTxDone is returned when a finished transaction is committed or rolled back again.
var ErrTxDone = errors.New("batch: transaction already finished")

// FileTransaction guards one file for the duration of a migration attempt.
// Begin copies the original to a backup; Commit discards the backup;
// Rollback restores the original bytes and discards the backup. Close rolls
// back a transaction that was never finished.
type FileTransaction struct {
	Original   string
	BackupPath string

	fs   afero.Fs
	mode os.FileMode
	done bool
	kept bool // rollback failed; backup left in place
}

// Begin backs up path and opens a transaction on it.
func Begin(fs afero.Fs, path string, now time.Time) (*FileTransaction, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("batch: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("batch: %s is a directory", path)
	}

	backup := path + ".bak." + now.Format(BackupLayout)
	for i := 1; ; i++ {
		if _, err := fs.Stat(backup); os.IsNotExist(err) {
			break
		}
		backup = fmt.Sprintf("%s.bak.%s.%d", path, now.Format(BackupLayout), i)
	}

	if err := copyFile(fs, path, backup, info.Mode().Perm()); err != nil {
		_ = fs.Remove(backup)
		return nil, fmt.Errorf("batch: back up %s: %w", path, err)
	}
	return &FileTransaction{
		Original:   path,
		BackupPath: backup,
		fs:         fs,
		mode:       info.Mode().Perm(),
	}, nil
}

// Commit keeps the current contents and discards the backup.
func (tx *FileTransaction) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	if err := tx.fs.Remove(tx.BackupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("batch: discard backup %s: %w", tx.BackupPath, err)
	}
	return nil
}

// Rollback restores the original contents from the backup and discards it.
// On failure the backup is left on disk and the transaction stays kept.
func (tx *FileTransaction) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	if err := copyFile(tx.fs, tx.BackupPath, tx.Original, tx.mode); err != nil {
		tx.kept = true
		return fmt.Errorf("batch: restore %s from %s: %w", tx.Original, tx.BackupPath, err)
	}
	if err := tx.fs.Remove(tx.BackupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("batch: discard backup %s: %w", tx.BackupPath, err)
	}
	return nil
}

// Close rolls back an unfinished transaction. It is safe to defer.
func (tx *FileTransaction) Close() error {
	if tx.done {
		return nil
	}
	return tx.Rollback()
}

// Kept reports whether a failed rollback left the backup on disk.
func (tx *FileTransaction) Kept() bool { return tx.kept }

func copyFile(fs afero.Fs, src, dst string, mode os.FileMode) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
