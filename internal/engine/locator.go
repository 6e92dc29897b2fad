package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"whisper-desk/internal/domain"
)

// Locator finds the engine executable among fixed candidate paths.
type Locator struct {
	repoDir    string
	candidates []string
	stat       func(name string) (os.FileInfo, error)
}

// NewLocator creates a locator that probes candidates relative to repoDir.
// Absolute candidates are used as given.
func NewLocator(repoDir string, candidates []string) *Locator {
	return &Locator{
		repoDir:    repoDir,
		candidates: append([]string(nil), candidates...),
		stat:       os.Stat,
	}
}

// Candidates returns the resolved paths probed by Resolve, in order.
func (l *Locator) Candidates() []string {
	out := make([]string, 0, len(l.candidates))
	for _, c := range l.candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !filepath.IsAbs(c) {
			c = filepath.Join(l.repoDir, filepath.FromSlash(c))
		}
		out = append(out, c)
	}
	return out
}

// Resolve returns the first candidate that exists as a regular file.
func (l *Locator) Resolve() (string, error) {
	probed := l.Candidates()
	for _, path := range probed {
		info, err := l.stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		return path, nil
	}
	return "", fmt.Errorf("%w: checked %s", domain.ErrEngineNotFound, strings.Join(probed, ", "))
}
