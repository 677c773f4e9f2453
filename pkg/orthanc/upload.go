package orthanc

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fraser29/zfmrf/pkg/dicom"
)

// UploadFile reads one DICOM file and posts it to the server.
func (c *Client) UploadFile(ctx context.Context, path string) (*UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	result, err := c.Upload(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", path, err)
	}
	return result, nil
}

// UploadDirectory posts every DICOM file under dir to the server and
// returns the number uploaded. Non-DICOM files are skipped. An empty
// directory uploads nothing and is not an error.
func (c *Client) UploadDirectory(ctx context.Context, dir string) (int, error) {
	uploaded := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !dicom.IsDICOMFile(path) {
			return nil
		}
		result, err := c.UploadFile(ctx, path)
		if err != nil {
			return err
		}
		c.logger.Debug("uploaded instance", "path", path, "status", result.Status)
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, fmt.Errorf("upload %s: %w", dir, err)
	}
	if uploaded == 0 {
		c.logger.Warn("no dicom files to upload", "dir", dir)
	}
	return uploaded, nil
}
