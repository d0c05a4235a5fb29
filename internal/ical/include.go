package ical

import (
	"io/fs"
	"os"

	"github.com/bmatcuk/doublestar/v4"
)

// DoublestarResolver returns an MFILE resolver rooted at base: pattern is
// matched against base's filesystem tree with full ** glob support (the
// "M" in MFILE historically only offered shell globbing; doublestar also
// lets a task's included fragments live in nested directories without the
// author needing one MFILE line per subdirectory).
func DoublestarResolver(base string) func(pattern string) ([][]byte, error) {
	return func(pattern string) ([][]byte, error) {
		fsys := os.DirFS(base)
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, err
		}
		out := make([][]byte, 0, len(matches))
		for _, m := range matches {
			data, err := fs.ReadFile(fsys, m)
			if err != nil {
				return nil, err
			}
			out = append(out, data)
		}
		return out, nil
	}
}
