package rawstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// writeOnce writes contents to path unless path exists. The contents are
// written to a temporary file first and hard linked into place, so a
// concurrent writer cannot be overwritten and a reader never sees a partial
// file.
func writeOnce(path string, contents []byte) (bool, error) {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", dir, err)
	}

	_, err = os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".%s.*.tmp", filepath.Base(path)))
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(contents)
	if err == nil {
		err = tmp.Chmod(0644)
	}
	err = errors.Join(err, tmp.Close())
	if err != nil {
		return false, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}

	err = os.Link(tmp.Name(), path)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
