package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type File struct {
	Name     string
	Contents []byte
}

// WriteAtomic writes every file into a temporary file in dir, then renames
// them into place in order. Nothing is renamed unless every temporary file
// was written, and when a rename fails the files already renamed are put
// back the way they were.
func WriteAtomic(dir string, files []File) error {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	temps := make([]string, 0, len(files))
	// backups[i] links to the file files[i] replaces, empty when there was none
	backups := make([]string, len(files))
	cleanup := func() {
		for _, t := range temps {
			os.Remove(t)
		}
		for _, b := range backups {
			if b != "" {
				os.Remove(b)
			}
		}
	}

	for _, f := range files {
		path, err := writeTemp(dir, f)
		if err != nil {
			cleanup()
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
		temps = append(temps, path)
	}

	for i, f := range files {
		backup, err := backupFile(filepath.Join(dir, f.Name), temps[i])
		if err != nil {
			cleanup()
			return fmt.Errorf("back up %s: %w", f.Name, err)
		}
		backups[i] = backup
	}

	for i, f := range files {
		err := os.Rename(temps[i], filepath.Join(dir, f.Name))
		if err == nil {
			continue
		}
		restoreErr := restore(dir, files[:i], backups[:i])
		backups = backups[i:]
		temps = temps[i:]
		cleanup()
		return errors.Join(fmt.Errorf("replace %s: %w", f.Name, err), restoreErr)
	}

	temps = nil
	cleanup()
	return nil
}

// backupFile hard links the regular file at path next to temp, anything
// else at path is left alone since renaming over it fails anyway.
func backupFile(path, temp string) (string, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", nil
	}
	backup := strings.TrimSuffix(temp, ".tmp") + ".bak"
	err = os.Link(path, backup)
	if err != nil {
		return "", err
	}
	return backup, nil
}

// restore undoes the renames of files, newest first.
func restore(dir string, files []File, backups []string) error {
	var errs []error
	for i := len(files) - 1; i >= 0; i-- {
		path := filepath.Join(dir, files[i].Name)
		var err error
		if backups[i] == "" {
			err = os.Remove(path)
		} else {
			err = os.Rename(backups[i], path)
			if err == nil {
				backups[i] = ""
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", files[i].Name, err))
		}
	}
	return errors.Join(errs...)
}

func writeTemp(dir string, f File) (string, error) {
	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".%s.*.tmp", f.Name))
	if err != nil {
		return "", err
	}

	_, err = tmp.Write(f.Contents)
	if err == nil {
		err = tmp.Sync()
	}
	if err == nil {
		err = tmp.Chmod(0644)
	}
	closeErr := tmp.Close()
	err = errors.Join(err, closeErr)
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
