package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/eudr-packhouse/parcel-ingester/service/log"
	"github.com/eudr-packhouse/parcel-ingester/vector"
	"github.com/natefinch/atomic"
)

// tempPath returns the path where the next version of the file is written
// (same directory, same driver)
func tempPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".tmp" + ext
}

// replace writes the layer next to path and renames it over path.
// The canonical path always holds either the previous or the new version.
func replace(ctx context.Context, path string, layer *vector.Layer) error {
	tmp := tempPath(path)
	if err := removeFile(tmp); err != nil {
		return fmt.Errorf("replace: %w", err)
	}
	if err := vector.Write(ctx, tmp, layer); err != nil {
		removeFile(tmp)
		return fmt.Errorf("replace.%w", err)
	}
	if err := atomic.ReplaceFile(tmp, path); err != nil {
		removeFile(tmp)
		return fmt.Errorf("replace.ReplaceFile: %w", err)
	}
	return nil
}

// rewrite reads the layer of path, transforms it and replaces the file with the result
func rewrite(ctx context.Context, path string, fn func(*vector.Layer) (*vector.Layer, error)) error {
	layer, err := vector.Read(ctx, path)
	if err != nil {
		return err
	}
	out, err := fn(layer)
	if err != nil {
		return err
	}
	return replace(ctx, path, out)
}

// removeFile removes the file if it exists
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// cleanup removes the upload, the working file and their temporary versions
func cleanup(ctx context.Context, paths ...string) {
	done := map[string]bool{}
	for _, p := range paths {
		if p == "" {
			continue
		}
		for _, f := range []string{p, tempPath(p)} {
			if done[f] {
				continue
			}
			done[f] = true
			if err := removeFile(f); err != nil {
				log.Logger(ctx).Sugar().Warnf("cleanup %s: %v", f, err)
			}
		}
	}
}
