package repo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandPatterns expands shell-style globs in order. A pattern with no
// match is kept literally so the load failure names the missing file.
func ExpandPatterns(patterns []string) ([]string, error) {
	files := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			files = append(files, pattern)
			continue
		}
		files = append(files, matches...)
	}
	return files, nil
}

// ReadMetafile returns the paths listed one per line in path. Blank lines
// and lines starting with '#' are skipped.
func ReadMetafile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metafile: %w", err)
	}
	defer f.Close()

	var files []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		files = append(files, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read metafile: %w", err)
	}
	return files, nil
}
