// Package walk expands file and directory arguments into media files.
package walk

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// MediaExtensions are the file extensions Files picks inside directories.
var MediaExtensions = []string{
	".aac", ".avi", ".flac", ".gif", ".jpg", ".jpeg", ".m4a", ".m4v", ".mkv",
	".mov", ".mp3", ".mp4", ".mpg", ".ogg", ".opus", ".png", ".ts", ".wav",
	".webm", ".webp",
}

// Files yields every path that is a regular file, and recursively every media
// file below the paths that are directories. Directory entries are filtered
// by exts, MediaExtensions when nil. Errors are yielded with the offending
// path; symlinks inside directories are not followed.
func Files(ctx context.Context, exts []string, paths ...string) iter.Seq2[string, error] {
	if exts == nil {
		exts = MediaExtensions
	}
	return func(yield func(string, error) bool) {
		for _, path := range paths {
			if ctx.Err() != nil {
				return
			}
			info, err := os.Stat(path)
			if err != nil {
				if !yield(path, err) {
					return
				}
				continue
			}
			if !info.IsDir() {
				if !yield(path, nil) {
					return
				}
				continue
			}
			if !dir(ctx, path, exts, yield) {
				return
			}
		}
	}
}

// dir walks the directory through an os.Root. It returns false once yield
// asked to stop.
func dir(ctx context.Context, name string, exts []string, yield func(string, error) bool) bool {
	root, err := os.OpenRoot(name)
	if err != nil {
		return yield(name, err)
	}
	defer func() {
		_ = root.Close()
	}()

	stopped := false
	fn := func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		abspath := filepath.Join(name, path)
		if err != nil {
			if !yield(abspath, err) {
				stopped = true
				return fs.SkipAll
			}
			return nil
		}
		if !d.Type().IsRegular() || !hasExt(path, exts) {
			return nil
		}
		if !yield(abspath, nil) {
			stopped = true
			return fs.SkipAll
		}
		return nil
	}
	_ = fs.WalkDir(root.FS(), ".", fn)
	return !stopped
}

func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
