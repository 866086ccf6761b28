package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Scan lists the allow-listed local files matching the glob patterns.
// Patterns use filepath.Match syntax; a "**" segment matches any number of
// directories, so "docs/**/*.md" finds markdown files at any depth under docs.
// Relative patterns are resolved against the working directory. Matches
// outside the allow-list are left out.
func (r *Resolver) Scan(ctx context.Context, globs []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range globs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		matches, err := r.glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	slices.Sort(files)
	return files, nil
}

func (r *Resolver) glob(pattern string) ([]string, error) {
	abs, err := filepath.Abs(pattern)
	if err != nil {
		return nil, err
	}

	if base, rest, ok := strings.Cut(filepath.ToSlash(abs), "**"); ok {
		base = filepath.FromSlash(strings.TrimSuffix(base, "/"))
		rest = strings.TrimPrefix(rest, "/")
		if _, err := filepath.Match(rest, ""); err != nil {
			return nil, err
		}
		dir, err := r.checkLocal(base)
		if err != nil {
			return nil, nil
		}
		return r.walk(dir, func(rel string) bool {
			if rest == "" {
				return true
			}
			ok, _ := filepath.Match(rest, tail(filepath.ToSlash(rel), strings.Count(rest, "/")+1))
			return ok
		})
	}

	matches, err := filepath.Glob(abs)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, m := range matches {
		p, err := r.checkLocal(m)
		if err != nil {
			continue
		}
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, p)
	}
	return files, nil
}

// tail returns the last n slash-separated segments of p.
func tail(p string, n int) string {
	parts := strings.Split(p, "/")
	if n >= len(parts) {
		return p
	}
	return strings.Join(parts[len(parts)-n:], "/")
}
