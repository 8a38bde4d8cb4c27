package walk_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthenica/ffmpeg-kit-sub000/internal/walk"
	"github.com/stretchr/testify/require"
)

func TestFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, p := range []string{"a.mp4", "b.TXT", "sub/c.MKV", "sub/deep/d.wav", "notes.md"} {
		path := filepath.Join(dir, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o600))
	}
	require.NoError(t, os.Symlink(filepath.Join(dir, "a.mp4"), filepath.Join(dir, "link.mp4")))

	type then struct {
		paths []string
		errs  int
	}
	cases := []struct {
		scenario string
		exts     []string
		given    []string
		then     then
	}{
		{
			"directory",
			nil,
			[]string{dir},
			then{paths: []string{
				filepath.Join(dir, "a.mp4"),
				filepath.Join(dir, "sub/c.MKV"),
				filepath.Join(dir, "sub/deep/d.wav"),
			}},
		},
		{
			"explicit file is not filtered",
			nil,
			[]string{filepath.Join(dir, "notes.md")},
			then{paths: []string{filepath.Join(dir, "notes.md")}},
		},
		{
			"custom extensions",
			[]string{".md", ".txt"},
			[]string{dir},
			then{paths: []string{filepath.Join(dir, "b.TXT"), filepath.Join(dir, "notes.md")}},
		},
		{
			"missing",
			nil,
			[]string{filepath.Join(dir, "missing.mp4"), filepath.Join(dir, "a.mp4")},
			then{paths: []string{filepath.Join(dir, "missing.mp4"), filepath.Join(dir, "a.mp4")}, errs: 1},
		},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			var (
				paths []string
				errs  int
			)
			for path, err := range walk.Files(t.Context(), tc.exts, tc.given...) {
				paths = append(paths, path)
				if err != nil {
					errs++
				}
			}
			require.Equal(t, tc.then.paths, paths)
			require.Equal(t, tc.then.errs, errs)
		})
	}
}

func TestFilesStop(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, p := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, p), nil, 0o600))
	}
	var n int
	for range walk.Files(t.Context(), nil, dir, dir) {
		n++
		if n == 2 {
			break
		}
	}
	require.Equal(t, 2, n)
}
