// Package source resolves document locators to bytes. Local files must lie
// under an allow-listed root, S3 objects in an allow-listed bucket and web
// pages on an allow-listed domain.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/leadai/leadai-rag/internal/scraper"
	"github.com/leadai/leadai-rag/internal/storage"
)

var (
	ErrOutsideAllowList = errors.New("outside allow-list")
	ErrNotFound         = errors.New("not found")
	ErrTooLarge         = errors.New("file too large")
	ErrNotConfigured    = errors.New("source not configured")
)

// Document is the raw content behind a locator.
type Document struct {
	Locator     string // what the caller asked for, normalized
	Name        string // used for format detection
	ContentType string
	Data        []byte
}

// ObjectStore is the S3 surface the resolver needs.
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string, maxBytes int64) (*storage.Object, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// Fetcher retrieves a single web page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*scraper.Page, error)
}

type Config struct {
	AllowedRoots   []string
	MaxFileBytes   int64
	AllowedBuckets []string
	AllowedDomains []string
	ArchiveBucket  string // fetched web pages are copied here when set
}

// Resolver expands and reads document locators.
type Resolver struct {
	roots          []string
	maxBytes       int64
	allowedBuckets []string
	allowedDomains []string
	archiveBucket  string
	objects        ObjectStore
	web            Fetcher
}

// New creates a resolver. objects and web may be nil, which disables S3 and
// web locators respectively.
func New(config Config, objects ObjectStore, web Fetcher) (*Resolver, error) {
	r := &Resolver{
		maxBytes:       config.MaxFileBytes,
		allowedBuckets: config.AllowedBuckets,
		archiveBucket:  config.ArchiveBucket,
		objects:        objects,
		web:            web,
	}
	for _, d := range config.AllowedDomains {
		r.allowedDomains = append(r.allowedDomains, strings.ToLower(strings.TrimPrefix(d, ".")))
	}
	for _, root := range config.AllowedRoots {
		resolved, err := canonical(root)
		if err != nil {
			return nil, fmt.Errorf("allowed root %q: %w", root, err)
		}
		r.roots = append(r.roots, resolved)
	}
	return r, nil
}

// Roots returns the canonical allow-listed directories.
func (r *Resolver) Roots() []string { return slices.Clone(r.roots) }

// InputError is an input that could not be expanded.
type InputError struct {
	Input string
	Err   error
}

func (e *InputError) Error() string { return fmt.Sprintf("%s: %v", e.Input, e.Err) }

func (e *InputError) Unwrap() error { return e.Err }

// Expand turns inputs into readable locators: directories become the regular
// files beneath them and S3 prefixes ending in "/" become their objects.
// Inputs that fail are reported individually; duplicates are dropped.
func (r *Resolver) Expand(ctx context.Context, inputs []string) ([]string, []*InputError) {
	var out []string
	var failures []*InputError
	seen := make(map[string]bool)
	add := func(loc string) {
		if !seen[loc] {
			seen[loc] = true
			out = append(out, loc)
		}
	}

	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		locs, err := r.expandOne(ctx, input)
		if err != nil {
			failures = append(failures, &InputError{Input: input, Err: err})
			continue
		}
		for _, loc := range locs {
			add(loc)
		}
	}
	return out, failures
}

func (r *Resolver) expandOne(ctx context.Context, input string) ([]string, error) {
	switch {
	case strings.HasPrefix(input, "s3://"):
		bucket, key, err := r.checkObject(input)
		if err != nil {
			return nil, err
		}
		if key != "" && !strings.HasSuffix(key, "/") {
			return []string{input}, nil
		}
		keys, err := r.objects.ListObjects(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		locs := make([]string, len(keys))
		for i, k := range keys {
			locs[i] = "s3://" + bucket + "/" + k
		}
		return locs, nil

	case strings.HasPrefix(input, "http://"), strings.HasPrefix(input, "https://"):
		if _, err := r.checkURL(input); err != nil {
			return nil, err
		}
		return []string{input}, nil

	default:
		p, err := r.checkLocal(input)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return []string{p}, nil
		}
		return r.walk(p, nil)
	}
}

// Read loads the document behind a locator produced by Expand.
func (r *Resolver) Read(ctx context.Context, locator string) (*Document, error) {
	switch {
	case strings.HasPrefix(locator, "s3://"):
		return r.readObject(ctx, locator)
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return r.readWeb(ctx, locator)
	default:
		return r.readLocal(locator)
	}
}

func (r *Resolver) readLocal(locator string) (*Document, error) {
	p, err := r.checkLocal(locator)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", p)
	}
	if r.maxBytes > 0 && info.Size() > r.maxBytes {
		return nil, fmt.Errorf("%s is %d bytes: %w", p, info.Size(), ErrTooLarge)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return &Document{Locator: p, Name: p, Data: data}, nil
}

func (r *Resolver) readObject(ctx context.Context, locator string) (*Document, error) {
	bucket, key, err := r.checkObject(locator)
	if err != nil {
		return nil, err
	}
	obj, err := r.objects.GetObject(ctx, bucket, key, r.maxBytes)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, fmt.Errorf("%s: %w", locator, ErrNotFound)
	case errors.Is(err, storage.ErrObjectTooLarge):
		return nil, fmt.Errorf("%s: %w", locator, ErrTooLarge)
	case err != nil:
		return nil, err
	}
	return &Document{Locator: locator, Name: key, ContentType: obj.ContentType, Data: obj.Data}, nil
}

func (r *Resolver) readWeb(ctx context.Context, locator string) (*Document, error) {
	u, err := r.checkURL(locator)
	if err != nil {
		return nil, err
	}
	page, err := r.web.Fetch(ctx, locator)
	if err != nil {
		return nil, err
	}
	if r.maxBytes > 0 && int64(len(page.Body)) > r.maxBytes {
		return nil, fmt.Errorf("%s is %d bytes: %w", locator, len(page.Body), ErrTooLarge)
	}
	if r.archiveBucket != "" && r.objects != nil {
		r.archive(ctx, u, page)
	}
	return &Document{Locator: locator, Name: page.URL, ContentType: page.ContentType, Data: page.Body}, nil
}

// archive keeps a copy of a fetched page, keyed by host and content digest.
// Failures are logged and do not fail the read.
func (r *Resolver) archive(ctx context.Context, u *url.URL, page *scraper.Page) {
	sum := sha256.Sum256(page.Body)
	ext := path.Ext(u.Path)
	if ext == "" {
		ext = ".html"
	}
	key := fmt.Sprintf("scrapes/%s/%s%s", u.Host, hex.EncodeToString(sum[:]), ext)
	if err := r.objects.PutObject(ctx, r.archiveBucket, key, page.Body, page.ContentType); err != nil {
		slog.Warn("failed to archive page", "url", page.URL, "bucket", r.archiveBucket, "error", err)
		return
	}
	slog.Debug("archived page", "url", page.URL, "key", key)
}

func (r *Resolver) checkObject(locator string) (bucket, key string, err error) {
	if r.objects == nil {
		return "", "", fmt.Errorf("s3 locators: %w", ErrNotConfigured)
	}
	rest := strings.TrimPrefix(locator, "s3://")
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid s3 locator %q", locator)
	}
	if !slices.Contains(r.allowedBuckets, bucket) {
		return "", "", fmt.Errorf("bucket %q: %w", bucket, ErrOutsideAllowList)
	}
	return bucket, key, nil
}

func (r *Resolver) checkURL(locator string) (*url.URL, error) {
	if r.web == nil {
		return nil, fmt.Errorf("web locators: %w", ErrNotConfigured)
	}
	u, err := url.Parse(locator)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", locator)
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range r.allowedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("host %q: %w", host, ErrOutsideAllowList)
}

// checkLocal resolves p to a canonical path and verifies it lies under an
// allowed root. Symlinks are resolved first so they cannot escape a root.
func (r *Resolver) checkLocal(p string) (string, error) {
	resolved, err := canonical(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return "", err
	}
	if !r.allowed(resolved) {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideAllowList)
	}
	return resolved, nil
}

func (r *Resolver) allowed(p string) bool {
	for _, root := range r.roots {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// walk lists regular files under dir accepted by match (all files when match
// is nil). Hidden directories are skipped.
func (r *Resolver) walk(dir string, match func(rel string) bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if match != nil {
			rel, _ := filepath.Rel(dir, p)
			if !match(rel) {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}
