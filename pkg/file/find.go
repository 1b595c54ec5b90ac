package file

import (
	"io/fs"
	"path/filepath"
	"time"
)

// FindModifiedBefore walks dir and returns regular files whose name matches
// pattern (filepath.Match syntax, "" matches all) and whose mtime is before cutoff.
func FindModifiedBefore(dir, pattern string, cutoff time.Time) ([]string, error) {
	var found []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if pattern != "" {
			ok, err := filepath.Match(pattern, d.Name())
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			found = append(found, path)
		}
		return nil
	})

	return found, err
}
