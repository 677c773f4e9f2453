package dicom

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SeriesDirName builds the directory name for a series: SE<N> followed by
// the description with everything outside [A-Za-z0-9] dropped.
func SeriesDirName(number int, description string) string {
	desc := sanitizeToken(description)
	if desc == "" {
		return fmt.Sprintf("SE%d", number)
	}
	return fmt.Sprintf("SE%d_%s", number, desc)
}

func sanitizeToken(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		}
	}
	return string(out)
}

// Organize copies a study's files into destRoot with one directory per
// series. Files are named by instance number, falling back to the
// SOPInstanceUID when instance numbers are missing or collide. Returns the
// number of files copied.
func (s *Scanner) Organize(ctx context.Context, study *Study, destRoot string) (int, error) {
	copied := 0
	for _, f := range study.Files {
		if err := ctx.Err(); err != nil {
			return copied, err
		}

		dir := filepath.Join(destRoot, SeriesDirName(f.SeriesNumber, f.SeriesDescription))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return copied, fmt.Errorf("create series dir: %w", err)
		}

		name := fmt.Sprintf("IM-%05d.dcm", f.InstanceNumber)
		if f.InstanceNumber == 0 && f.SOPInstanceUID != "" {
			name = f.SOPInstanceUID + ".dcm"
		}
		dest := filepath.Join(dir, name)
		if fileExists(dest) && f.SOPInstanceUID != "" {
			dest = filepath.Join(dir, f.SOPInstanceUID+".dcm")
		}
		// Suffix duplicates and UID-less collisions rather than overwrite.
		base := strings.TrimSuffix(dest, ".dcm")
		for n := 1; fileExists(dest); n++ {
			dest = fmt.Sprintf("%s-%d.dcm", base, n)
		}

		if err := copyFile(f.Path, dest); err != nil {
			return copied, err
		}
		copied++
	}
	s.logger.Debug("organized study", "study", study.UID, "files", copied, "dest", destRoot)
	return copied, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dest, err)
	}
	return out.Close()
}
