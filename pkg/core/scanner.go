package core

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Task is one file to compress: its key inside the archive and its
// location on disk. Relative paths use forward slashes regardless of
// platform, so archives travel between systems.
type Task struct {
	RelPath string
	AbsPath string
	Size    int64
}

// ScanRoot walks root and returns every regular file beneath it in
// deterministic (lexical) order. Symlinks are skipped. The returned
// length is the progress denominator for the whole session.
//
// A missing or unreadable root yields a *ScanError before any task is
// produced, so callers never start a partial archive for a bad root.
func ScanRoot(root string) ([]Task, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}

	if !info.IsDir() {
		// A single file archives under its own base name.
		return []Task{{
			RelPath: filepath.Base(root),
			AbsPath: root,
			Size:    info.Size(),
		}}, nil
	}

	var tasks []Task
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			Logger.Println("skipping non-regular file", path)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		tasks = append(tasks, Task{
			RelPath: filepath.ToSlash(rel),
			AbsPath: path,
			Size:    fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}
	return tasks, nil
}
