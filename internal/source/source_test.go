package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadai/leadai-rag/internal/scraper"
	"github.com/leadai/leadai-rag/internal/storage"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// tree builds root/{a.txt, docs/b.md, docs/deep/c.md, .git/x.md} plus a
// sibling directory outside the root.
func tree(t *testing.T) (root, outside string) {
	t.Helper()
	base := t.TempDir()
	root = filepath.Join(base, "allowed")
	outside = filepath.Join(base, "secret")
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	writeFile(t, filepath.Join(root, "docs", "b.md"), "# Beta")
	writeFile(t, filepath.Join(root, "docs", "deep", "c.md"), "# Gamma")
	writeFile(t, filepath.Join(root, ".git", "x.md"), "hidden")
	writeFile(t, filepath.Join(outside, "passwords.txt"), "hunter2")
	root, _ = filepath.EvalSymlinks(root)
	outside, _ = filepath.EvalSymlinks(outside)
	return root, outside
}

func TestExpand_LocalAllowList(t *testing.T) {
	root, outside := tree(t)
	r, err := New(Config{AllowedRoots: []string{root}}, nil, nil)
	require.NoError(t, err)

	locs, failures := r.Expand(context.Background(), []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "docs"),
		filepath.Join(root, "a.txt"),
		filepath.Join(outside, "passwords.txt"),
		filepath.Join(root, "..", "secret", "passwords.txt"),
		filepath.Join(root, "missing.txt"),
	})

	assert.Equal(t, []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "docs", "b.md"),
		filepath.Join(root, "docs", "deep", "c.md"),
	}, locs)

	require.Len(t, failures, 3)
	assert.ErrorIs(t, failures[0], ErrOutsideAllowList)
	assert.ErrorIs(t, failures[1], ErrOutsideAllowList)
	assert.ErrorIs(t, failures[2], ErrNotFound)
}

func TestRead_SymlinkEscapeRejected(t *testing.T) {
	root, outside := tree(t)
	link := filepath.Join(root, "escape.txt")
	if err := os.Symlink(filepath.Join(outside, "passwords.txt"), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	r, err := New(Config{AllowedRoots: []string{root}}, nil, nil)
	require.NoError(t, err)

	_, err = r.Read(context.Background(), link)
	assert.ErrorIs(t, err, ErrOutsideAllowList)
}

func TestRead_Local(t *testing.T) {
	root, _ := tree(t)
	r, err := New(Config{AllowedRoots: []string{root}, MaxFileBytes: 6}, nil, nil)
	require.NoError(t, err)

	doc, err := r.Read(context.Background(), filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(doc.Data))
	assert.Equal(t, filepath.Join(root, "a.txt"), doc.Locator)

	writeFile(t, filepath.Join(root, "big.txt"), "0123456789")
	_, err = r.Read(context.Background(), filepath.Join(root, "big.txt"))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestRead_NoRootsRejectsEverything(t *testing.T) {
	root, _ := tree(t)
	r, err := New(Config{}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, r.Roots())

	_, err = r.Read(context.Background(), filepath.Join(root, "a.txt"))
	assert.ErrorIs(t, err, ErrOutsideAllowList)
}

func TestRoots_Canonical(t *testing.T) {
	root, _ := tree(t)
	r, err := New(Config{AllowedRoots: []string{root + string(filepath.Separator) + "."}}, nil, nil)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, []string{want}, r.Roots())
}

func TestScan(t *testing.T) {
	root, outside := tree(t)
	r, err := New(Config{AllowedRoots: []string{root}}, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name  string
		globs []string
		want  []string
	}{
		{"single level", []string{filepath.Join(root, "*.txt")}, []string{filepath.Join(root, "a.txt")}},
		{"recursive", []string{filepath.Join(root, "**", "*.md")}, []string{
			filepath.Join(root, "docs", "b.md"),
			filepath.Join(root, "docs", "deep", "c.md"),
		}},
		{"all under dir", []string{filepath.Join(root, "docs", "**")}, []string{
			filepath.Join(root, "docs", "b.md"),
			filepath.Join(root, "docs", "deep", "c.md"),
		}},
		{"multi segment tail", []string{filepath.Join(root, "**", "deep", "*.md")}, []string{
			filepath.Join(root, "docs", "deep", "c.md"),
		}},
		{"outside filtered", []string{filepath.Join(outside, "*.txt")}, nil},
		{"deduplicated", []string{filepath.Join(root, "*.txt"), filepath.Join(root, "a.*")}, []string{filepath.Join(root, "a.txt")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Scan(ctx, tt.globs)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = r.Scan(ctx, []string{filepath.Join(root, "[")})
	assert.Error(t, err)
}

type fakeObjects struct {
	objects map[string]string
	puts    map[string]string
}

func (f *fakeObjects) GetObject(_ context.Context, bucket, key string, maxBytes int64) (*storage.Object, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, storage.ErrObjectTooLarge
	}
	return &storage.Object{Bucket: bucket, Key: key, ContentType: "text/markdown", Data: []byte(data)}, nil
}

func (f *fakeObjects) ListObjects(_ context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for k := range f.objects {
		if after, ok := strings.CutPrefix(k, bucket+"/"); ok && strings.HasPrefix(after, prefix) {
			keys = append(keys, after)
		}
	}
	return keys, nil
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, key string, data []byte, _ string) error {
	if f.puts == nil {
		f.puts = make(map[string]string)
	}
	f.puts[bucket+"/"+key] = string(data)
	return nil
}

func TestS3Locators(t *testing.T) {
	objects := &fakeObjects{objects: map[string]string{
		"evidence/policies/review.md": "# Review",
		"private/keys.txt":            "secret",
	}}
	r, err := New(Config{AllowedBuckets: []string{"evidence"}}, objects, nil)
	require.NoError(t, err)
	ctx := context.Background()

	locs, failures := r.Expand(ctx, []string{"s3://evidence/policies/", "s3://private/keys.txt"})
	assert.Equal(t, []string{"s3://evidence/policies/review.md"}, locs)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], ErrOutsideAllowList)

	doc, err := r.Read(ctx, "s3://evidence/policies/review.md")
	require.NoError(t, err)
	assert.Equal(t, "# Review", string(doc.Data))
	assert.Equal(t, "policies/review.md", doc.Name)
	assert.Equal(t, "text/markdown", doc.ContentType)

	_, err = r.Read(ctx, "s3://evidence/missing.md")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3NotConfigured(t *testing.T) {
	r, err := New(Config{AllowedBuckets: []string{"evidence"}}, nil, nil)
	require.NoError(t, err)
	_, err = r.Read(context.Background(), "s3://evidence/a.md")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

type fakeFetcher struct{ calls int }

func (f *fakeFetcher) Fetch(_ context.Context, pageURL string) (*scraper.Page, error) {
	f.calls++
	return &scraper.Page{URL: pageURL, ContentType: "text/html", Body: []byte("<html><body>ok</body></html>"), FetchedAt: time.Now()}, nil
}

func TestWebLocators(t *testing.T) {
	objects := &fakeObjects{}
	web := &fakeFetcher{}
	r, err := New(Config{AllowedDomains: []string{"example.com"}, ArchiveBucket: "archive"}, objects, web)
	require.NoError(t, err)
	ctx := context.Background()

	doc, err := r.Read(ctx, "https://docs.example.com/guide")
	require.NoError(t, err)
	assert.Equal(t, "text/html", doc.ContentType)
	assert.Len(t, objects.puts, 1)
	for key := range objects.puts {
		assert.True(t, strings.HasPrefix(key, "archive/scrapes/docs.example.com/"), key)
	}

	_, err = r.Read(ctx, "https://evil-example.com/guide")
	assert.ErrorIs(t, err, ErrOutsideAllowList)
	assert.Equal(t, 1, web.calls)
}

func TestInputErrorUnwraps(t *testing.T) {
	err := &InputError{Input: "x", Err: ErrNotFound}
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "x: not found", err.Error())
}
