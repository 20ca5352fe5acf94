package requestlog

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"
)

var ErrNoBackup = errors.New("no backup found")

func backupPath(path string) string {
	return path + ".bak.xz"
}

// BackupPath is where the previous log is kept, xz-compressed, before each
// overwrite.
func (s *Store) BackupPath() string {
	return backupPath(s.path)
}

func writeBackup(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	if err := compressTo(tmp, in); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func compressTo(path string, r io.Reader) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	zw, err := xz.NewWriter(out)
	if err != nil {
		_ = out.Close()
		return err
	}
	if _, err := io.Copy(zw, r); err != nil {
		_ = zw.Close()
		_ = out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// RestoreBackup replaces the log with the last backup taken before an
// overwrite.
func (s *Store) RestoreBackup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, err := os.Open(backupPath(s.path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoBackup
		}
		return err
	}
	defer in.Close()

	zr, err := xz.NewReader(in)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}

	tmp := s.path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, zr); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("decompress backup: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
