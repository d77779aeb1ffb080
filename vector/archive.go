package vector

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver"
)

// ErrNoLayer is returned when an archive does not contain any vector file
type ErrNoLayer struct {
	Archive string
}

func (e ErrNoLayer) Error() string {
	return fmt.Sprintf("no vector layer found in %s", filepath.Base(e.Archive))
}

func newZip() *archiver.Zip {
	z := archiver.NewZip()
	z.OverwriteExisting = true
	z.MkdirAll = true
	return z
}

// firstEntry returns the name of the first vector file of the archive, in archive order
func firstEntry(archive string) (string, error) {
	var name string
	err := newZip().Walk(archive, func(f archiver.File) error {
		if f.IsDir() {
			return nil
		}
		header, ok := f.Header.(zip.FileHeader)
		if !ok {
			return fmt.Errorf("unexpected header %T", f.Header)
		}
		if strings.HasPrefix(header.Name, "__MACOSX/") {
			return nil
		}
		if _, err := DriverFor(header.Name); err == nil {
			name = header.Name
			return archiver.ErrStopWalk
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", ErrNoLayer{Archive: archive}
	}
	return name, nil
}

// lowerShpExt renames the components of a shapefile so that their extensions are lowercase
func lowerShpExt(path string) (string, error) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	matches, err := filepath.Glob(base + ".*")
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		ext := filepath.Ext(m)
		if lower := strings.ToLower(ext); lower != ext {
			if err := os.Rename(m, base+lower); err != nil {
				return "", err
			}
		}
	}
	return base + ".shp", nil
}

// FirstLayer extracts the zip archive into destDir and returns the path of
// the first vector file it contains, in archive order.
func FirstLayer(ctx context.Context, archive, destDir string) (string, error) {
	name, err := firstEntry(archive)
	if err != nil {
		return "", fmt.Errorf("FirstLayer: %w", err)
	}
	if err := newZip().Unarchive(archive, destDir); err != nil {
		return "", fmt.Errorf("FirstLayer.Unarchive: %w", err)
	}
	path := filepath.Join(destDir, filepath.FromSlash(name))
	if ext := filepath.Ext(path); strings.EqualFold(ext, ".shp") && ext != ".shp" {
		if path, err = lowerShpExt(path); err != nil {
			return "", fmt.Errorf("FirstLayer.lowerShpExt: %w", err)
		}
	}
	return path, nil
}

// Zip archives the files into a new zip file, at the root of the archive
func Zip(ctx context.Context, archive string, files ...string) error {
	if err := newZip().Archive(files, archive); err != nil {
		return fmt.Errorf("Zip: %w", err)
	}
	return nil
}
