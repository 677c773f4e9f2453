package subject

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fraser29/zfmrf/pkg/core"
)

// CopyFile copies src to dest, preserving the file mode.
func CopyFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dest, err)
	}
	return out.Close()
}

// CopyFileInto copies src into the directory dest, keeping the base name.
func CopyFileInto(src, dest string) error {
	return CopyFile(src, filepath.Join(dest, filepath.Base(src)))
}

// CopyTree copies the directory tree at src into dest, merging with
// whatever is already there. Existing files are overwritten.
func CopyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return CopyFile(path, target)
	})
}

// MoveTree moves src to dest, falling back to copy and delete when a rename
// crosses filesystems.
func MoveTree(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	if err := CopyTree(src, dest); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

// Archive moves the whole subject directory under destRoot. The handle
// keeps its ID but points at the new root afterwards.
func (s *Subject) Archive(destRoot string) error {
	if !s.Exists() {
		return fmt.Errorf("archive %s: %w", s.ID, core.ErrSubjectNotFound)
	}
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return fmt.Errorf("create archive root: %w", err)
	}
	dest := filepath.Join(destRoot, s.ID)
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("archive %s: %s already exists", s.ID, dest)
	}

	s.Log().Info("archiving subject", "dest", dest)
	if err := s.Close(); err != nil {
		return err
	}
	if err := MoveTree(s.Path(), dest); err != nil {
		return fmt.Errorf("archive %s: %w", s.ID, err)
	}
	s.mu.Lock()
	s.Root = destRoot
	s.meta = nil
	s.mu.Unlock()
	return nil
}
